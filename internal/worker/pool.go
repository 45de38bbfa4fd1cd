package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrClosed is returned by Do after Close has been called.
	ErrClosed = errors.New("worker: pool closed")

	// ErrTaskPanicked wraps a panic recovered from a task.
	ErrTaskPanicked = errors.New("worker: task panicked")
)

// Task is a unit of blocking work. It receives the caller's context.
type Task func(ctx context.Context) error

// Pool runs tasks on at most Size goroutines at a time.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Pool struct {
	name     string
	size     int64
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	inFlight atomic.Int64
	closed   atomic.Bool
}

// New creates a pool that runs at most size tasks concurrently.
// A size below 1 is treated as 1.
func New(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		name: name,
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

// Do runs task on a pool goroutine and waits for its result.
//
// Do blocks until a slot is free, the task returns, or ctx is done,
// whichever comes first. When ctx ends first Do returns ctx.Err() and the
// task keeps running in the background until it returns.
//
// Parameters:
//   - ctx: Bounds both the wait for a slot and the wait for the result
//   - task: The blocking work; it should honour ctx where it can
//
// Returns:
//   - error: The task's error, ctx.Err(), ErrClosed, or ErrTaskPanicked
func (p *Pool) Do(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	done := make(chan error, 1)
	p.wg.Add(1)
	p.inFlight.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer p.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: %s: %v", ErrTaskPanicked, p.name, r)
			}
		}()
		done <- task(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Prefer a result that raced with cancellation.
		select {
		case err := <-done:
			return err
		default:
			return ctx.Err()
		}
	}
}

// InFlight returns the number of tasks currently running.
func (p *Pool) InFlight() int {
	return int(p.inFlight.Load())
}

// Size returns the maximum number of concurrent tasks.
func (p *Pool) Size() int {
	return int(p.size)
}

// Name returns the pool name used in errors.
func (p *Pool) Name() string {
	return p.name
}

// Close rejects new tasks and waits for running ones to return.
func (p *Pool) Close() {
	p.Shutdown(context.Background()) //nolint:errcheck // background never ends
}

// Shutdown rejects new tasks and waits for running ones until ctx is done.
// Tasks still running after that are left to finish on their own.
//
// Returns:
//   - error: nil once every task returned, or ctx.Err() wrapped with the
//     number of tasks still running
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closed.Store(true)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker: %s: %d tasks still running: %w", p.name, p.InFlight(), ctx.Err())
	}
}
