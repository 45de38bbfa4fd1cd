package status

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/rx380-logger/internal/audit"
	"github.com/nerrad567/rx380-logger/internal/auth"
	"github.com/nerrad567/rx380-logger/internal/control"
	"github.com/nerrad567/rx380-logger/internal/scheduler"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

// healthCheckTimeout bounds each component check run by /health.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Device     string            `json:"device"`
	RunID      string            `json:"run_id"`
	Version    string            `json:"version"`
	State      scheduler.State   `json:"state"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components,omitempty"`
	Host       *HostHealth       `json:"host,omitempty"`
}

// handleHealth returns 200 with status "ok" or "degraded" while the pipeline
// runs, and 503 once it is stopping. A failing check or sink means degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	resp := HealthResponse{
		Status:  "ok",
		Device:  s.device,
		RunID:   s.runID,
		Version: s.version,
		State:   snap.State,
		Uptime:  time.Since(snap.StartedAt).Round(time.Second).String(),
	}

	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		for name, c := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := c.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	if s.sinks != nil {
		for _, st := range s.sinks.States() {
			if !st.Healthy() {
				resp.Status = "degraded"
			}
		}
	}

	if host, err := collectHostHealth(r.Context(), s.dataPath); err != nil {
		s.logger.Warn("host health unavailable", "error", err)
	} else {
		resp.Host = host
	}

	code := http.StatusOK
	if snap.State == scheduler.Stopping || snap.State == scheduler.Stopped {
		resp.Status = "stopping"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	r, ok := s.tracker.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no reading yet")
		return
	}
	writeJSON(w, http.StatusOK, r)
}

func (s *Server) handleSinks(w http.ResponseWriter, _ *http.Request) {
	states := []sink.SinkState{}
	if s.sinks != nil {
		states = s.sinks.States()
	}
	writeJSON(w, http.StatusOK, map[string]any{"sinks": states})
}

// handleEvents returns a page of the event trail, newest first.
//
// Query parameters:
//   - kind: filter by event kind (state_change, meter_unreachable, ...)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event log requires the database")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Kind: q.Get("kind")}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list events", "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleControl queues pause, resume or quit for the scheduler. The command
// is applied on the scheduler's next turn, hence 202.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "control is disabled")
		return
	}

	operator, ok := s.authorizeControl(w, r)
	if !ok {
		return
	}

	cmd, err := control.ParseCommand(chi.URLParam(r, "command"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	if err := s.commands.TrySend(cmd); err != nil {
		if errors.Is(err, control.ErrChannelFull) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command queue is full")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	s.logger.Info("control command accepted", "command", cmd.String(), "source", "http",
		"operator", operator, "request_id", r.Context().Value(ctxKeyRequestID))
	writeJSON(w, http.StatusAccepted, map[string]string{"command": cmd.String()})
}

// authorizeControl checks the bearer token when a control secret is
// configured and returns the operator name. It writes the error response
// itself and returns false when the request is refused.
func (s *Server) authorizeControl(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.cfg.ControlSecret == "" {
		return "anonymous", true
	}

	claims, err := auth.Authorize(r.Header.Get("Authorization"), s.cfg.ControlSecret, auth.ScopeControl)
	switch {
	case err == nil:
		return claims.Subject, true
	case errors.Is(err, auth.ErrMissingScope):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "token does not grant control")
	default:
		s.logger.Warn("control request rejected", "error", err,
			"request_id", r.Context().Value(ctxKeyRequestID))
		w.Header().Set("WWW-Authenticate", `Bearer realm="rx380"`)
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "valid bearer token required")
	}
	return "", false
}
