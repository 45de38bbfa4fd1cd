package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/scheduler"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Logger interface for optional logging support.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Option configures a Recorder.
type Option func(*Recorder)

// WithQueueSize sets how many events may wait for the writer.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan Event, n)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder turns scheduler observations into persisted events.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Recorder struct {
	repo   Repository
	logger Logger
	now    func() time.Time
	queue  chan Event
	done   chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	dropped int

	meterDown bool
	readFails int
	failing   map[string]bool
}

// NewRecorder creates a Recorder writing to repo. Call Start to begin
// writing and Close to flush the queue.
func NewRecorder(repo Repository, opts ...Option) *Recorder {
	r := &Recorder{
		repo:    repo,
		logger:  noopLogger{},
		now:     time.Now,
		queue:   make(chan Event, defaultQueueSize),
		done:    make(chan struct{}),
		failing: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLogger sets a logger for write failures.
func (r *Recorder) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Start launches the writer goroutine. Calling it twice is a no-op.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	go r.run()
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		r.write(e)
	}

	r.mu.Lock()
	dropped := r.dropped
	r.mu.Unlock()
	if dropped > 0 {
		r.write(Event{
			Kind:      KindEventsDropped,
			Source:    "audit",
			Message:   fmt.Sprintf("%d events dropped, queue full", dropped),
			Details:   map[string]any{"dropped": dropped},
			CreatedAt: r.now(),
		})
	}
}

func (r *Recorder) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, &e); err != nil {
		r.logger.Warn("event not recorded", "kind", e.Kind, "error", err)
	}
}

// Close stops accepting events and waits until the queue is written or
// ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	if !r.started {
		r.started = true
		go r.run()
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit: flushing events: %w", ctx.Err())
	}
}

// Record queues an event. It never blocks; a full queue drops the event.
func (r *Recorder) Record(kind, source, message string, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueue(kind, source, message, details)
}

// enqueue requires r.mu.
func (r *Recorder) enqueue(kind, source, message string, details map[string]any) {
	if r.closed {
		return
	}
	e := Event{Kind: kind, Source: source, Message: message, Details: details, CreatedAt: r.now()}
	select {
	case r.queue <- e:
	default:
		r.dropped++
	}
}

// OnReading records the meter coming back after read failures.
func (r *Recorder) OnReading(meter.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.meterDown {
		return
	}
	r.enqueue(KindMeterRecovered, "meter", "meter answering again",
		map[string]any{"failed_reads": r.readFails})
	r.meterDown = false
	r.readFails = 0
}

// OnReadError records the first failure of an outage.
func (r *Recorder) OnReadError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readFails++
	if r.meterDown {
		return
	}
	r.meterDown = true
	r.enqueue(KindMeterDown, "meter", err.Error(), nil)
}

// OnFlush records sinks that start failing or recover.
func (r *Recorder) OnFlush(result sink.FlushResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range result.Failures {
		if r.failing[f.Sink] {
			continue
		}
		r.failing[f.Sink] = true
		r.enqueue(KindSinkFailed, f.Sink, f.Err.Error(), map[string]any{"rows": f.Rows})
	}
	for name, rows := range result.Written {
		if !r.failing[name] {
			continue
		}
		delete(r.failing, name)
		r.enqueue(KindSinkRecovered, name, "sink writing again", map[string]any{"rows": rows})
	}
}

// OnStateChange records every pipeline state transition.
func (r *Recorder) OnStateChange(from, to scheduler.State) {
	r.Record(KindStateChange, "pipeline", fmt.Sprintf("%s -> %s", from, to),
		map[string]any{"from": from.String(), "to": to.String()})
}
