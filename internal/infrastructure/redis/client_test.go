package redis_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/redis"
)

func testConfig() config.RedisConfig {
	addr := os.Getenv("RX380_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	return config.RedisConfig{
		Enabled:   true,
		Addr:      addr,
		DB:        15,
		KeyPrefix: "rx380test",
		TTL:       time.Minute,
	}
}

// skipIfNoRedis skips the test if Redis is not running.
func skipIfNoRedis(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") != "" {
		return
	}
	client, err := redis.Connect(context.Background(), testConfig())
	if err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	client.Close() //nolint:errcheck // Probe only
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := redis.Connect(context.Background(), cfg)
	if !errors.Is(err, redis.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := redis.Connect(ctx, cfg)
	if !errors.Is(err, redis.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_StoreLatest(t *testing.T) {
	skipIfNoRedis(t)
	ctx := context.Background()

	client, err := redis.Connect(ctx, testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if got, want := client.LatestKey("main-incomer"), "rx380test:latest:main-incomer"; got != want {
		t.Errorf("LatestKey() = %q, want %q", got, want)
	}

	first := map[string]any{"timestamp": "2026-03-14T10:00:00Z", "voltage_l1": 230.1, "frequency": 50.0}
	if err := client.StoreLatest(ctx, "main-incomer", first); err != nil {
		t.Fatalf("StoreLatest() error = %v", err)
	}
	// A later reading with fewer channels fully replaces the hash.
	second := map[string]any{"timestamp": "2026-03-14T10:00:05Z", "voltage_l1": 230.2}
	if err := client.StoreLatest(ctx, "main-incomer", second); err != nil {
		t.Fatalf("StoreLatest() error = %v", err)
	}

	got, err := client.Latest(ctx, "main-incomer")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got["voltage_l1"] != "230.2" {
		t.Errorf("voltage_l1 = %q, want 230.2", got["voltage_l1"])
	}
	if _, ok := got["frequency"]; ok {
		t.Error("frequency should not survive a replacing write")
	}
}

func TestClient_LatestMissing(t *testing.T) {
	skipIfNoRedis(t)
	ctx := context.Background()

	client, err := redis.Connect(ctx, testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if _, err := client.Latest(ctx, "never-written"); !errors.Is(err, redis.ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}
}
