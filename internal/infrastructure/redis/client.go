package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
)

const defaultConnectTimeout = 5 * time.Second

// Client wraps a go-redis client scoped to one key prefix.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// Connect creates the client and verifies the server answers PING.
//
// Parameters:
//   - ctx: Bounds the ping
//   - cfg: Redis section of config.yaml
//
// Returns:
//   - *Client: Connected client
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.Addr, err)
	}

	return &Client{rdb: rdb, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

// LatestKey returns the hash key holding device's latest reading.
func (c *Client) LatestKey(device string) string {
	if c.prefix == "" {
		return "latest:" + device
	}
	return c.prefix + ":latest:" + device
}

// StoreLatest replaces device's latest-reading hash with fields and resets
// its expiry, in one MULTI/EXEC so readers never see a half-written hash.
func (c *Client) StoreLatest(ctx context.Context, device string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	key := c.LatestKey(device)

	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, key, err)
	}
	return nil
}

// Latest returns device's cached hash.
func (c *Client) Latest(ctx context.Context, device string) (map[string]string, error) {
	fields, err := c.rdb.HGetAll(ctx, c.LatestKey(device)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading latest for %s: %w", device, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying connections.
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("closing redis: %w", err)
	}
	return nil
}
