package meter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/rx380-logger/internal/worker"
)

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// MeterClient reads every channel of a RegisterMap into one Reading.
type MeterClient struct {
	device  string
	regs    *RegisterMap
	pool    *ConnectionPool
	workers *worker.Pool
	now     func() time.Time
	logger  Logger
}

// ClientOption configures a MeterClient.
type ClientOption func(*MeterClient)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) ClientOption {
	return func(c *MeterClient) {
		c.now = now
	}
}

// NewMeterClient creates a client.
//
// Parameters:
//   - device: Meter name stamped on every Reading
//   - regs: Channels to read
//   - pool: Transport handles; each register read holds one for its I/O
//   - workers: Goroutines that perform the blocking reads
func NewMeterClient(device string, regs *RegisterMap, pool *ConnectionPool, workers *worker.Pool, opts ...ClientOption) *MeterClient {
	c := &MeterClient{
		device:  device,
		regs:    regs,
		pool:    pool,
		workers: workers,
		now:     time.Now,
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetLogger sets the logger for the client.
func (c *MeterClient) SetLogger(logger Logger) {
	if logger == nil {
		c.logger = noopLogger{}
		return
	}
	c.logger = logger
}

// Registers returns the map the client reads.
func (c *MeterClient) Registers() *RegisterMap {
	return c.regs
}

// ReadReading reads every channel and returns one complete Reading.
//
// Channel reads run concurrently on the worker pool. The first failure
// cancels the reads still in flight and fails the whole call; no partial
// Reading is ever returned.
//
// Returns:
//   - Reading: Values in map order, timestamped at the start of the call
//   - error: *PartialReadError naming the first channel that failed
func (c *MeterClient) ReadReading(ctx context.Context) (Reading, error) {
	started := c.now()
	registers := c.regs.registers
	values := make([]float64, len(registers))

	g, gctx := errgroup.WithContext(ctx)
	// One goroutine per worker slot, so each read is handed off once.
	g.SetLimit(c.workers.Size())
	for i, reg := range registers {
		g.Go(func() error {
			err := c.workers.Do(gctx, func(ctx context.Context) error {
				return c.pool.Do(ctx, func(t Transport) error {
					v, err := reg.read(ctx, NewRegisterReader(t, c.regs.order))
					if err != nil {
						return err
					}
					values[i] = v
					return nil
				})
			})
			if err != nil {
				return &PartialReadError{Channel: reg.Name, Cause: err}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var pe *PartialReadError
		if errors.As(err, &pe) {
			c.logger.Warn("meter read failed", "channel", pe.Channel, "error", pe.Cause)
			return Reading{}, pe
		}
		return Reading{}, fmt.Errorf("meter: read failed: %w", err)
	}

	c.logger.Debug("meter read complete",
		"channels", len(values),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return NewReading(c.device, started, c.regs.names, values)
}
