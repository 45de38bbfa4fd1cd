package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClient_Publish(t *testing.T) {
	c, fake := connectedFake()

	err := c.Publish(context.Background(), c.Topics().Reading(), []byte(`{"v":1}`), false)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := fake.publishes()
	if len(got) != 1 {
		t.Fatalf("publishes = %d, want 1", len(got))
	}
	if got[0].topic != "rx380/main/reading" {
		t.Errorf("topic = %q, want rx380/main/reading", got[0].topic)
	}
	if got[0].qos != 1 {
		t.Errorf("qos = %d, want 1", got[0].qos)
	}
	if got[0].retained {
		t.Error("retained = true, want false")
	}
}

func TestClient_PublishValidation(t *testing.T) {
	c, fake := connectedFake()

	tests := []struct {
		name    string
		topic   string
		payload []byte
		want    error
	}{
		{"empty topic", "", []byte("x"), ErrInvalidTopic},
		{"oversized payload", "rx380/main/reading", make([]byte, maxPayloadSize+1), ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(context.Background(), tt.topic, tt.payload, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
	if n := len(fake.publishes()); n != 0 {
		t.Errorf("publishes = %d, want 0", n)
	}
}

func TestClient_PublishBrokerError(t *testing.T) {
	c, fake := connectedFake()
	fake.publishErr = errors.New("not authorised")

	err := c.Publish(context.Background(), "rx380/main/reading", []byte("x"), false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestClient_PublishHonoursContext(t *testing.T) {
	c, fake := connectedFake()
	fake.pending = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Publish(ctx, "rx380/main/reading", []byte("x"), false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestClient_NotConnected(t *testing.T) {
	c, fake := connectedFake()
	fake.mu.Lock()
	fake.connected = false
	fake.mu.Unlock()

	if err := c.Publish(context.Background(), "t", []byte("x"), false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_SubscribeDeliversMessages(t *testing.T) {
	c, fake := connectedFake()

	var mu sync.Mutex
	var got []string
	err := c.Subscribe(context.Background(), c.Topics().Control(), 1, func(topic string, payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, topic+"="+string(payload))
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", c.SubscriptionCount())
	}

	fake.deliver("rx380/main/control", []byte("pause"))

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "rx380/main/control=pause" {
		t.Errorf("handler received %v", got)
	}
}

func TestClient_SubscribeValidation(t *testing.T) {
	c, _ := connectedFake()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe(context.Background(), "", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe(context.Background(), "t", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe(context.Background(), "t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
}

func TestClient_HandlerPanicRecovered(t *testing.T) {
	c, fake := connectedFake()

	err := c.Subscribe(context.Background(), "rx380/main/control", 1, func(string, []byte) error {
		panic("bad handler")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Must not propagate.
	fake.deliver("rx380/main/control", []byte("quit"))
}

func TestClient_ReconnectRestoresSubscriptionsAndStatus(t *testing.T) {
	c, fake := connectedFake()
	noop := func(string, []byte) error { return nil }
	if err := c.Subscribe(context.Background(), "rx380/main/control", 1, noop); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.mu.Lock()
	delete(fake.handlers, "rx380/main/control")
	fake.mu.Unlock()

	c.handleDisconnect(errors.New("EOF"))
	if c.IsConnected() {
		t.Error("IsConnected() = true after connection lost")
	}
	c.handleConnect()

	fake.mu.Lock()
	_, restored := fake.handlers["rx380/main/control"]
	fake.mu.Unlock()
	if !restored {
		t.Error("subscription not restored after reconnect")
	}

	pubs := fake.publishes()
	last := pubs[len(pubs)-1]
	if last.topic != "rx380/main/status" || !last.retained {
		t.Errorf("last publish = %s retained=%v, want retained status", last.topic, last.retained)
	}
	var status statusPayload
	if err := json.Unmarshal(last.payload, &status); err != nil {
		t.Fatalf("status payload: %v", err)
	}
	if status.Status != statusOnline || status.RunID != "run-1" {
		t.Errorf("status = %+v, want online with run id", status)
	}
}

func TestClient_CloseAnnouncesOffline(t *testing.T) {
	c, fake := connectedFake()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	pubs := fake.publishes()
	if len(pubs) != 1 || !strings.Contains(string(pubs[0].payload), "graceful_shutdown") {
		t.Errorf("publishes = %+v, want one graceful offline status", pubs)
	}
	if !fake.disconnected {
		t.Error("Disconnect() not called")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
