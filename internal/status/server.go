package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/rx380-logger/internal/audit"
	"github.com/nerrad567/rx380-logger/internal/control"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/logging"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SinkStater reports per-sink health. Implemented by *sink.Manager.
type SinkStater interface {
	States() []sink.SinkState
}

// CommandSender accepts operator commands. Implemented by *control.Channel.
type CommandSender interface {
	TrySend(cmd control.Command) error
}

// EventLister pages through the pipeline event trail. Implemented by
// *audit.SQLiteRepository.
type EventLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the status server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Tracker  *Tracker
	Sinks    SinkStater
	Commands CommandSender

	// Events backs /api/v1/events. Nil when the database is disabled.
	Events EventLister

	// Dashboard is served at /. Nil disables it.
	Dashboard http.Handler

	// Hub backs /api/v1/stream. Nil disables the route.
	Hub *Hub

	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer

	// Checks are run by /health, keyed by component name.
	Checks map[string]HealthChecker

	// DataPath is the filesystem whose usage /health reports. Defaults to "/".
	DataPath string

	Device  string
	RunID   string
	Version string
}

// Server is the status HTTP server.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	tracker  *Tracker
	sinks    SinkStater
	commands CommandSender
	events   EventLister
	pages    http.Handler
	hub      *Hub
	gatherer prometheus.Gatherer
	checks   map[string]HealthChecker
	dataPath string
	device   string
	runID    string
	version  string

	mu     sync.Mutex
	server *http.Server
	addr   string
}

// New creates a status server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger and Tracker are required; the rest are optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	dataPath := deps.DataPath
	if dataPath == "" {
		dataPath = "/"
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		tracker:  deps.Tracker,
		sinks:    deps.Sinks,
		commands: deps.Commands,
		events:   deps.Events,
		pages:    deps.Dashboard,
		hub:      deps.Hub,
		gatherer: deps.Gatherer,
		checks:   deps.Checks,
		dataPath: dataPath,
		device:   deps.Device,
		runID:    deps.RunID,
		version:  deps.Version,
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// The listener is bound before Start returns, so a port conflict is
// returned rather than logged.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding status server: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("status server listening", "address", s.addr)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status server shutting down")
	// Shutdown does not touch hijacked connections.
	if s.hub != nil {
		s.hub.Close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("status health check: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("status server not started")
	}
	return nil
}

// Handler builds the router. Exposed for tests and for embedding.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/reading/latest", s.handleLatest)
		r.Get("/sinks", s.handleSinks)
		r.Get("/events", s.handleEvents)
		r.Get("/stream", s.handleStream)
		r.Post("/control/{command}", s.handleControl)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.pages != nil {
		r.Handle("/*", s.pages)
	}

	return r
}
