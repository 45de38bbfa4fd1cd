package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/rx380-logger/internal/buffer"
	"github.com/nerrad567/rx380-logger/internal/control"
	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Reader produces complete readings (meter.MeterClient).
type Reader interface {
	ReadReading(ctx context.Context) (meter.Reading, error)
}

// Flusher persists a batch (sink.Manager).
type Flusher interface {
	Flush(ctx context.Context, batch []meter.Reading) sink.FlushResult
}

// Heartbeat is reset after every completed cycle (watchdog.LivenessMonitor).
type Heartbeat interface {
	Reset()
}

type nopHeartbeat struct{}

func (nopHeartbeat) Reset() {}

// Config holds the cadence settings.
type Config struct {
	ReadInterval  time.Duration
	FlushInterval time.Duration
	Cadence       Cadence

	// Location anchors clock cadence to local midnight.
	Location *time.Location

	// ShutdownTimeout bounds the final flush.
	ShutdownTimeout time.Duration
}

// Deps are the collaborators the loop drives.
type Deps struct {
	Reader    Reader
	Buffer    *buffer.SampleBuffer
	Flusher   Flusher
	Heartbeat Heartbeat
	Observers []Observer
	Logger    Logger
}

// Scheduler owns the pipeline loop.
//
// Thread Safety:
//   - Run, RunCycle and Apply must be called from one goroutine.
//   - State is safe to call from any goroutine.
type Scheduler struct {
	cfg       Config
	reader    Reader
	buf       *buffer.SampleBuffer
	flusher   Flusher
	heartbeat Heartbeat
	observers []Observer
	logger    Logger
	now       func() time.Time

	mu    sync.RWMutex
	state State

	readsPerFlush   int
	readsSinceFlush int
	nextFlush       time.Time
	nextRead        time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides time.Now, for cadence tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler in the Running state.
func New(cfg Config, deps Deps, opts ...Option) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Scheduler{
		cfg:       cfg,
		reader:    deps.Reader,
		buf:       deps.Buffer,
		flusher:   deps.Flusher,
		heartbeat: deps.Heartbeat,
		observers: deps.Observers,
		logger:    deps.Logger,
		now:       time.Now,
		state:     Running,
	}
	if s.heartbeat == nil {
		s.heartbeat = nopHeartbeat{}
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	for _, opt := range opts {
		opt(s)
	}

	s.readsPerFlush = readsPerFlush(cfg.ReadInterval, cfg.FlushInterval)
	if cfg.Cadence == Clock {
		s.nextFlush = NextBoundary(s.now().In(cfg.Location), cfg.FlushInterval)
	}
	return s
}

// readsPerFlush is ceil(flush / read), at least 1.
func readsPerFlush(read, flush time.Duration) int {
	if read <= 0 || flush <= read {
		return 1
	}
	n := int(flush / read)
	if flush%read != 0 {
		n++
	}
	return n
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scheduler) setState(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	if from == to {
		return
	}
	s.logger.Info("pipeline state changed", "from", from.String(), "to", to.String())
	for _, o := range s.observers {
		o.OnStateChange(from, to)
	}
}

// Apply executes an operator command. It returns true when the loop
// should stop. Repeated or out-of-place commands are no-ops.
func (s *Scheduler) Apply(cmd control.Command) bool {
	state := s.State()
	if state == Stopping || state == Stopped {
		return true
	}

	switch cmd {
	case control.Pause:
		if state == Running {
			s.setState(Paused)
		}
	case control.Resume:
		if state == Paused {
			s.setState(Running)
		}
	case control.Quit:
		s.setState(Stopping)
		return true
	default:
		s.logger.Warn("ignoring unknown command", "command", cmd.String())
	}
	return false
}

// Run drives cycles until a Quit command arrives or ctx ends, then
// performs the final flush and returns.
//
// Parameters:
//   - ctx: Cancelling it stops the loop like Quit
//   - commands: Operator commands, applied between cycles
//
// Returns:
//   - error: nil once the final flush has run
func (s *Scheduler) Run(ctx context.Context, commands <-chan control.Command) error {
	s.logger.Info("pipeline started",
		"read_interval", s.cfg.ReadInterval.String(),
		"flush_interval", s.cfg.FlushInterval.String(),
		"reads_per_flush", s.readsPerFlush,
	)

	// Fixed cadence reads immediately; clock cadence waits for a boundary.
	first := time.Duration(0)
	if s.cfg.Cadence == Clock {
		first = s.untilNextCycle()
	}
	s.nextRead = s.now().Add(first)
	timer := time.NewTimer(first)
	defer timer.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			s.setState(Stopping)
			break loop
		case cmd := <-commands:
			if s.Apply(cmd) {
				break loop
			}
		case <-timer.C:
			s.RunCycle(ctx)
			timer.Reset(s.untilNextCycle())
		}
	}

	s.shutdown()
	return nil
}

// untilNextCycle is the wait before the next read. Fixed cadence keeps a
// steady period regardless of how long the cycle took, skipping missed
// slots rather than bursting to catch up.
func (s *Scheduler) untilNextCycle() time.Duration {
	now := s.now().In(s.cfg.Location)
	if s.cfg.Cadence == Clock {
		return NextBoundary(now, s.cfg.ReadInterval).Sub(now)
	}
	s.nextRead = s.nextRead.Add(s.cfg.ReadInterval)
	if !s.nextRead.After(now) {
		s.nextRead = now.Add(s.cfg.ReadInterval)
	}
	return s.nextRead.Sub(now)
}

// RunCycle performs one cycle: read (unless paused), maybe flush, heartbeat.
func (s *Scheduler) RunCycle(ctx context.Context) {
	defer s.heartbeat.Reset()

	if s.State() != Running {
		s.logger.Debug("cycle skipped", "state", s.State().String())
		return
	}

	r, err := s.reader.ReadReading(ctx)
	if err != nil {
		s.logger.Warn("meter read failed", "error", err)
		for _, o := range s.observers {
			o.OnReadError(err)
		}
		return
	}

	forced := s.buf.Push(r)
	s.readsSinceFlush++
	for _, o := range s.observers {
		o.OnReading(r)
	}

	if forced || s.flushDue() {
		s.flush(ctx)
	}
}

func (s *Scheduler) flushDue() bool {
	if s.cfg.Cadence == Clock {
		return !s.now().Before(s.nextFlush)
	}
	return s.readsSinceFlush >= s.readsPerFlush
}

// flush drains the buffer into the sinks.
func (s *Scheduler) flush(ctx context.Context) {
	s.readsSinceFlush = 0
	if s.cfg.Cadence == Clock {
		s.nextFlush = NextBoundary(s.now().In(s.cfg.Location), s.cfg.FlushInterval)
	}

	batch := s.buf.DrainAll()
	if len(batch) == 0 {
		return
	}
	result := s.flusher.Flush(ctx, batch)
	for _, o := range s.observers {
		o.OnFlush(result)
	}
}

// shutdown flushes whatever is buffered on a fresh context, since the
// loop's context may already be cancelled.
func (s *Scheduler) shutdown() {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pending := s.buf.Len()
	s.logger.Info("final flush", "readings", pending)
	s.flush(ctx)
	s.setState(Stopped)
}
