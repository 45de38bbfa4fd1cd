package meter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ConnectionPool holds a fixed set of open transports.
//
// A counting permit equal to the pool size guards the handles, so
// outstanding acquires never exceed Size. Acquire is the only call in the
// pipeline that is allowed to block waiting for a resource, and it honours
// its context.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type ConnectionPool struct {
	permits *semaphore.Weighted
	size    int

	mu     sync.Mutex
	idle   []Transport
	all    []Transport
	closed bool

	inUse atomic.Int64
}

// NewConnectionPool opens size transports up front.
//
// If any transport cannot be opened, the ones already opened are closed and
// the error is returned, so a misconfigured link fails at startup rather
// than on the first read.
//
// Parameters:
//   - size: Number of handles (minimum 1)
//   - factory: Opens one transport
//
// Returns:
//   - *ConnectionPool: Pool with every handle idle
//   - error: The factory error, wrapped with the handle index
func NewConnectionPool(size int, factory TransportFactory) (*ConnectionPool, error) {
	if size < 1 {
		size = 1
	}

	p := &ConnectionPool{
		permits: semaphore.NewWeighted(int64(size)),
		size:    size,
		idle:    make([]Transport, 0, size),
		all:     make([]Transport, 0, size),
	}

	for i := 0; i < size; i++ {
		t, err := factory()
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("opening meter handle %d/%d: %w", i+1, size, err)
		}
		p.idle = append(p.idle, t)
		p.all = append(p.all, t)
	}
	return p, nil
}

// Acquire waits for a free handle.
//
// Returns:
//   - Transport: A handle that must be passed back to Release
//   - error: ctx.Err() if the wait is cancelled, ErrPoolClosed after Close
func (p *ConnectionPool) Acquire(ctx context.Context) (Transport, error) {
	if err := p.permits.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed || len(p.idle) == 0 {
		p.mu.Unlock()
		p.permits.Release(1)
		return nil, ErrPoolClosed
	}
	t := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	p.mu.Unlock()

	p.inUse.Add(1)
	return t, nil
}

// Release returns a handle obtained from Acquire.
func (p *ConnectionPool) Release(t Transport) {
	p.mu.Lock()
	p.idle = append(p.idle, t)
	p.mu.Unlock()

	p.inUse.Add(-1)
	p.permits.Release(1)
}

// Do runs fn with a pooled handle and releases it afterwards, also when fn
// returns an error.
func (p *ConnectionPool) Do(ctx context.Context, fn func(Transport) error) error {
	t, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(t)
	return fn(t)
}

// InUse returns the number of handles currently acquired.
func (p *ConnectionPool) InUse() int {
	return int(p.inUse.Load())
}

// Size returns the number of handles in the pool.
func (p *ConnectionPool) Size() int {
	return p.size
}

// Close closes every handle. Handles still acquired are closed too; reads
// in progress on them fail.
func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, t := range p.all {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.idle = nil
	return errors.Join(errs...)
}
