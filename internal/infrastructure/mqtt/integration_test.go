//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"
)

// Integration tests against a real broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ControlRoundTrip(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Broker.ClientID = "rx380-int-roundtrip"
	topics := NewTopics("rx380-int", "meter")

	client, err := Connect(cfg, topics, "int-run")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	received := make(chan string, 1)
	err = client.Subscribe(context.Background(), topics.Control(), 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Publish(context.Background(), topics.Control(), []byte("pause"), false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "pause" {
			t.Errorf("received %q, want pause", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for control message")
	}
}
