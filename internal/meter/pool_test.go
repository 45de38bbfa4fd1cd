package meter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewConnectionPool_FailFast(t *testing.T) {
	var opened []*fakeTransport
	calls := 0
	factory := func() (Transport, error) {
		calls++
		if calls == 3 {
			return nil, ErrConnectFailed
		}
		ft := newFakeTransport()
		opened = append(opened, ft)
		return ft, nil
	}

	_, err := NewConnectionPool(4, factory)
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("NewConnectionPool() error = %v, want ErrConnectFailed", err)
	}
	for i, ft := range opened {
		if !ft.isClosed() {
			t.Errorf("handle %d left open after failed construction", i)
		}
	}
}

func TestConnectionPool_BoundsOutstandingAcquires(t *testing.T) {
	const size = 2
	pool, err := NewConnectionPool(size, factoryFor(newFakeTransport()))
	if err != nil {
		t.Fatalf("NewConnectionPool() error = %v", err)
	}
	defer pool.Close()

	var peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func(Transport) error {
				n := int64(pool.InUse())
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > size {
		t.Errorf("peak InUse() = %d, want <= %d", got, size)
	}
	if got := pool.InUse(); got != 0 {
		t.Errorf("InUse() = %d after all work, want 0", got)
	}
}

func TestConnectionPool_AcquireHonoursContext(t *testing.T) {
	pool, err := NewConnectionPool(1, factoryFor(newFakeTransport()))
	if err != nil {
		t.Fatalf("NewConnectionPool() error = %v", err)
	}
	defer pool.Close()

	held, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := pool.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() on exhausted pool error = %v, want context.DeadlineExceeded", err)
	}

	pool.Release(held)
	if got := pool.InUse(); got != 0 {
		t.Errorf("InUse() = %d, want 0", got)
	}
}

func TestConnectionPool_DoReleasesOnError(t *testing.T) {
	pool, err := NewConnectionPool(1, factoryFor(newFakeTransport()))
	if err != nil {
		t.Fatalf("NewConnectionPool() error = %v", err)
	}
	defer pool.Close()

	boom := errors.New("boom")
	if err := pool.Do(context.Background(), func(Transport) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want %v", err, boom)
	}
	if got := pool.InUse(); got != 0 {
		t.Errorf("InUse() after failed Do = %d, want 0", got)
	}
}

func TestConnectionPool_Close(t *testing.T) {
	ft := newFakeTransport()
	pool, err := NewConnectionPool(2, factoryFor(ft))
	if err != nil {
		t.Fatalf("NewConnectionPool() error = %v", err)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !ft.isClosed() {
		t.Error("transport not closed")
	}
	if _, err := pool.Acquire(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Acquire() after Close error = %v, want ErrPoolClosed", err)
	}
	if err := pool.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
