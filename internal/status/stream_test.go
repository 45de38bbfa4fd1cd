package status

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/logging"
	"github.com/nerrad567/rx380-logger/internal/scheduler"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

func dialStream(t *testing.T, query string) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test"))
	srv := testServer(t, Deps{Hub: hub})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck // Test cleanup

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestStream_StateChange(t *testing.T) {
	hub, conn := dialStream(t, "")

	hub.OnStateChange(scheduler.Running, scheduler.Paused)

	msg := readMessage(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != ChannelState {
		t.Fatalf("message = %+v, want state event", msg)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok || payload["to"] != "paused" {
		t.Errorf("payload = %v, want to=paused", msg.Payload)
	}
}

func TestStream_ChannelFilter(t *testing.T) {
	hub, conn := dialStream(t, "?channels=flush")

	hub.OnStateChange(scheduler.Running, scheduler.Paused)
	hub.OnReadError(errors.New("timeout"))
	hub.OnFlush(sink.FlushResult{
		Readings: 12,
		Written:  map[string]int{"csv": 12},
		Failures: []*sink.SinkWriteError{{Sink: "postgres", Rows: 12, Err: errors.New("refused")}},
	})

	msg := readMessage(t, conn)
	if msg.EventType != ChannelFlush {
		t.Fatalf("first message = %q, want only flush events", msg.EventType)
	}
	payload := msg.Payload.(map[string]any)
	if payload["readings"] != float64(12) {
		t.Errorf("readings = %v, want 12", payload["readings"])
	}
	failures := payload["failures"].(map[string]any)
	if failures["postgres"] != "refused" {
		t.Errorf("failures = %v", failures)
	}
}

func TestStream_SubscribeAndPing(t *testing.T) {
	hub, conn := dialStream(t, "?channels=flush")

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "1",
		Payload: WSSubscribePayload{Channels: []string{ChannelReadError}}}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Fatalf("subscribe reply = %+v", msg)
	}

	hub.OnReadError(errors.New("timeout"))
	if msg := readMessage(t, conn); msg.EventType != ChannelReadError {
		t.Fatalf("event = %q, want %q", msg.EventType, ChannelReadError)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "2"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypePong || msg.ID != "2" {
		t.Errorf("ping reply = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "3"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeError {
		t.Errorf("unknown type reply = %+v, want error", msg)
	}
}

func TestStream_CloseDisconnects(t *testing.T) {
	hub, conn := dialStream(t, "")
	hub.Close()

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after Close", hub.ClientCount())
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage() succeeded after hub Close")
	}
}

func TestStream_Disabled(t *testing.T) {
	srv := testServer(t, Deps{})
	if rec := do(t, srv, http.MethodGet, "/api/v1/stream"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatusWriter_Hijack(t *testing.T) {
	w := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := w.Hijack(); err == nil {
		t.Error("Hijack() on a recorder should fail")
	}
	if w.Unwrap() == nil {
		t.Error("Unwrap() = nil")
	}
}
