package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/worker"
)

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// FlushResult summarises one Flush across all sinks.
type FlushResult struct {
	// Readings is the size of the batch handed to Flush.
	Readings int

	// Written maps sink name to rows persisted, including carried backlog.
	Written map[string]int

	// Failures has one entry per sink that did not persist its rows.
	Failures []*SinkWriteError
}

// OK reports whether every sink succeeded.
func (r FlushResult) OK() bool {
	return len(r.Failures) == 0
}

// Err joins the failures, or returns nil.
func (r FlushResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

type managedSink struct {
	sink Sink

	// writing is set while a write runs on the pool, including one that
	// outlived its flush.
	writing atomic.Bool

	mu      sync.Mutex
	backlog []meter.Reading
	state   SinkState

	// persisted is the newest timestamp a write is known to have stored.
	persisted time.Time
}

// Manager fans batches out to every configured sink.
//
// Thread Safety:
//   - Flush may be called concurrently, but the scheduler calls it from one goroutine.
//   - States and Close are safe for concurrent use.
type Manager struct {
	sinks        []*managedSink
	workers      *worker.Pool
	timeout      time.Duration
	backlogLimit int
	now          func() time.Time

	loggerMu sync.RWMutex
	logger   Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds each sink's write. Zero means only the flush context applies.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = d }
}

// WithBacklogLimit caps rows carried over per failing sink. Zero disables carry-over.
func WithBacklogLimit(n int) ManagerOption {
	return func(m *Manager) { m.backlogLimit = n }
}

// WithManagerClock overrides time.Now for sink state timestamps.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over sinks. Writes run on workers.
func NewManager(workers *worker.Pool, sinks []Sink, opts ...ManagerOption) *Manager {
	m := &Manager{
		workers: workers,
		now:     time.Now,
		logger:  noopLogger{},
	}
	for _, s := range sinks {
		m.sinks = append(m.sinks, &managedSink{sink: s, state: SinkState{Name: s.Name()}})
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetLogger sets the logger for sink failures and recoveries.
func (m *Manager) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	defer m.loggerMu.Unlock()
	if logger == nil {
		m.logger = noopLogger{}
		return
	}
	m.logger = logger
}

func (m *Manager) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

// Len returns the number of sinks.
func (m *Manager) Len() int {
	return len(m.sinks)
}

// Flush writes batch to every sink concurrently and waits for all of them.
//
// Each sink receives its carried backlog followed by batch. A failing sink
// keeps those rows for next time; it never affects the others, and Flush
// itself never fails.
//
// Parameters:
//   - ctx: Bounds the whole flush; each sink is further bounded by WithTimeout
//   - batch: Readings in acquisition order
//
// Returns:
//   - FlushResult: Rows written per sink and any per-sink failures
func (m *Manager) Flush(ctx context.Context, batch []meter.Reading) FlushResult {
	result := FlushResult{Readings: len(batch), Written: make(map[string]int, len(m.sinks))}

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		started = m.now()
	)
	for _, ms := range m.sinks {
		rows := ms.pending(batch)
		if len(rows) == 0 {
			continue
		}

		wg.Add(1)
		go func(ms *managedSink, rows []meter.Reading) {
			defer wg.Done()
			err := m.write(ctx, ms, rows)

			resMu.Lock()
			defer resMu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, &SinkWriteError{Sink: ms.sink.Name(), Rows: len(rows), Err: err})
				return
			}
			result.Written[ms.sink.Name()] = len(rows)
		}(ms, rows)
	}
	wg.Wait()

	for _, f := range result.Failures {
		m.getLogger().Warn("sink write failed", "sink", f.Sink, "rows", f.Rows, "error", f.Err)
	}
	if len(batch) > 0 {
		m.getLogger().Info("flush complete",
			"readings", len(batch),
			"sinks_ok", len(result.Written),
			"sinks_failed", len(result.Failures),
			"duration_ms", m.now().Sub(started).Milliseconds(),
		)
	}
	return result
}

func (m *Manager) write(ctx context.Context, ms *managedSink, rows []meter.Reading) error {
	writeCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	// abandoned is guarded by ms.mu. It is set once this flush has recorded
	// the write as failed.
	var abandoned bool

	var err error
	if ms.writing.Load() {
		// A wedged write keeps its worker slot. Do not queue behind it, or
		// repeated flushes would take every slot from the other sinks.
		err = ErrBusy
	} else {
		err = m.workers.Do(writeCtx, func(taskCtx context.Context) error {
			if !ms.writing.CompareAndSwap(false, true) {
				return ErrBusy
			}
			defer ms.writing.Store(false)

			if err := ms.sink.Write(taskCtx, rows); err != nil {
				var pw *PartialWriteError
				if errors.As(err, &pw) && pw.Rows > 0 && pw.Rows <= len(rows) {
					ms.settle(rows[pw.Rows-1].Timestamp(), &abandoned)
				}
				return err
			}
			if late := ms.settle(rows[len(rows)-1].Timestamp(), &abandoned); late > 0 {
				m.getLogger().Info("late sink write persisted carried rows", "sink", ms.sink.Name(), "rows", late)
			}
			return nil
		})
	}

	now := m.now()
	if err != nil {
		dropped := ms.fail(rows, m.backlogLimit, err, now, &abandoned)
		if dropped > 0 {
			m.getLogger().Warn("sink backlog full, dropping oldest rows", "sink", ms.sink.Name(), "dropped", dropped)
		}
		return err
	}

	if ms.succeed(len(rows), now) {
		m.getLogger().Info("sink recovered", "sink", ms.sink.Name())
	}
	return nil
}

// pending returns the sink's backlog followed by batch.
func (ms *managedSink) pending(batch []meter.Reading) []meter.Reading {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.backlog) == 0 {
		return batch
	}
	rows := make([]meter.Reading, 0, len(ms.backlog)+len(batch))
	rows = append(rows, ms.backlog...)
	return append(rows, batch...)
}

// fail records the failure and keeps rows as the new backlog, trimmed to
// limit from the oldest end. It returns how many rows were dropped.
func (ms *managedSink) fail(rows []meter.Reading, limit int, err error, now time.Time, abandoned *bool) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	*abandoned = true
	rows = ms.unpersisted(rows)
	dropped := 0
	if len(rows) > limit {
		dropped = len(rows) - limit
		rows = rows[dropped:]
	}
	ms.backlog = append([]meter.Reading(nil), rows...)

	ms.state.ConsecutiveFailures++
	ms.state.LastError = err.Error()
	ms.state.LastErrorAt = now
	ms.state.Backlog = len(ms.backlog)
	return dropped
}

// settle records that every row up to last is stored. When the flush that
// started the write has already recorded it as failed, the stored rows sit
// in the backlog; settle drops them so they are not written twice and
// returns how many it dropped.
func (ms *managedSink) settle(last time.Time, abandoned *bool) int {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if last.After(ms.persisted) {
		ms.persisted = last
	}
	if !*abandoned {
		return 0
	}
	before := len(ms.backlog)
	ms.backlog = ms.unpersisted(ms.backlog)
	n := before - len(ms.backlog)
	if n > 0 {
		ms.state.Backlog = len(ms.backlog)
		ms.state.Written += uint64(n)
	}
	return n
}

// unpersisted returns the rows newer than the persisted mark. Rows are in
// acquisition order, so that is a suffix. Callers hold ms.mu.
func (ms *managedSink) unpersisted(rows []meter.Reading) []meter.Reading {
	if ms.persisted.IsZero() {
		return rows
	}
	i := 0
	for i < len(rows) && !rows[i].Timestamp().After(ms.persisted) {
		i++
	}
	return rows[i:]
}

// succeed clears the backlog. It reports whether the sink had been failing.
func (ms *managedSink) succeed(n int, now time.Time) bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	wasFailing := ms.state.ConsecutiveFailures > 0
	ms.backlog = nil
	ms.state.ConsecutiveFailures = 0
	ms.state.LastSuccess = now
	ms.state.Backlog = 0
	ms.state.Written += uint64(n)
	return wasFailing
}

// States returns a snapshot of every sink's health, in configuration order.
func (m *Manager) States() []SinkState {
	out := make([]SinkState, len(m.sinks))
	for i, ms := range m.sinks {
		ms.mu.Lock()
		out[i] = ms.state
		ms.mu.Unlock()
	}
	return out
}

// Close closes every sink that holds resources.
func (m *Manager) Close() error {
	var errs []error
	for _, ms := range m.sinks {
		c, ok := ms.sink.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing sink %s: %w", ms.sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
