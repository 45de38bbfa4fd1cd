package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
)

const defaultConnectTimeout = 10 * time.Second

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Client wraps a pgx connection pool bound to one readings table.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	pool  *pgxpool.Pool
	table pgx.Identifier

	mu     sync.RWMutex
	closed bool
}

// Connect creates the pool and verifies the server answers a ping.
//
// Parameters:
//   - ctx: Bounds pool creation and the ping
//   - cfg: Postgres section of config.yaml
//
// Returns:
//   - *Client: Connected client
//   - error: ErrDisabled, ErrInvalidIdentifier, or ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	table, err := ParseTable(cfg.Table)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing url: %w", ErrConnectionFailed, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}

	return &Client{pool: pool, table: table}, nil
}

// ParseTable splits "schema.table" (or "table") into a pgx identifier.
func ParseTable(name string) (pgx.Identifier, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("%w: table %q", ErrInvalidIdentifier, name)
	}
	for _, p := range parts {
		if !identPattern.MatchString(p) {
			return nil, fmt.Errorf("%w: table %q", ErrInvalidIdentifier, name)
		}
	}
	return pgx.Identifier(parts), nil
}

// Table returns the quoted table name.
func (c *Client) Table() string {
	return c.table.Sanitize()
}

// EnsureReadingsTable creates the readings table if needed and adds any
// missing channel columns. Columns are never dropped.
func (c *Client) EnsureReadingsTable(ctx context.Context, channels []string) error {
	if err := c.check(); err != nil {
		return err
	}

	stmts := []string{createTableSQL(c.table)}
	for _, ch := range channels {
		if !identPattern.MatchString(ch) {
			return fmt.Errorf("%w: column %q", ErrInvalidIdentifier, ch)
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s DOUBLE PRECISION",
			c.table.Sanitize(), pgx.Identifier{ch}.Sanitize()))
	}

	for _, stmt := range stmts {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("preparing table %s: %w", c.table.Sanitize(), err)
		}
	}
	return nil
}

func createTableSQL(table pgx.Identifier) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	device_id TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL
)`, table.Sanitize())
}

// CopyRows writes rows to the readings table inside one transaction using
// the COPY protocol. Either every row commits or none does.
//
// Parameters:
//   - ctx: Bounds the whole transaction
//   - columns: Column names, in the order values appear in each row
//   - rows: Row values
//
// Returns:
//   - int64: Rows copied
//   - error: ErrNotConnected, or ErrWriteFailed wrapping the cause
func (c *Client) CopyRows(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", ErrWriteFailed, err)
	}
	defer tx.Rollback(context.Background()) //nolint:errcheck // No-op after commit

	n, err := tx.CopyFrom(ctx, c.table, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("%w: copy: %w", ErrWriteFailed, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrWriteFailed, err)
	}
	return n, nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// Close releases every pooled connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.pool.Close()
	return nil
}

func (c *Client) check() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrNotConnected
	}
	return nil
}
