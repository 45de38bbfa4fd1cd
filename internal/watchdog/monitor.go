package watchdog

import (
	"os"
	"sync"
	"time"
)

// ExitCode is passed to the exit function on expiry.
const ExitCode = 1

// Logger interface for optional logging support.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// LivenessMonitor is a resettable deadline.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type LivenessMonitor struct {
	timeout time.Duration
	exit    func(code int)
	logger  Logger

	mu        sync.Mutex
	timer     *time.Timer
	stopped   bool
	lastReset time.Time
}

// Option configures a LivenessMonitor.
type Option func(*LivenessMonitor)

// WithExit replaces os.Exit, for tests.
func WithExit(exit func(code int)) Option {
	return func(m *LivenessMonitor) { m.exit = exit }
}

// WithLogger logs the expiry before exiting.
func WithLogger(logger Logger) Option {
	return func(m *LivenessMonitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a monitor that is not yet armed.
func New(timeout time.Duration, opts ...Option) *LivenessMonitor {
	m := &LivenessMonitor{
		timeout: timeout,
		exit:    os.Exit,
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start arms the monitor. Calling Start again behaves like Reset.
func (m *LivenessMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.lastReset = time.Now()
	if m.timer != nil {
		m.timer.Reset(m.timeout)
		return
	}
	m.timer = time.AfterFunc(m.timeout, m.expire)
}

// Reset pushes the deadline out by the timeout. It does nothing before
// Start or after Stop.
func (m *LivenessMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.timer == nil {
		return
	}
	m.lastReset = time.Now()
	m.timer.Reset(m.timeout)
}

// Stop disarms the monitor permanently. Used during orderly shutdown.
func (m *LivenessMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
	}
}

// LastReset returns the time of the latest Start or Reset.
func (m *LivenessMonitor) LastReset() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReset
}

// Timeout returns the configured timeout.
func (m *LivenessMonitor) Timeout() time.Duration {
	return m.timeout
}

func (m *LivenessMonitor) expire() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	since := time.Since(m.lastReset)
	m.mu.Unlock()

	m.logger.Error("watchdog expired, terminating",
		"timeout", m.timeout.String(),
		"since_last_reset", since.String(),
	)
	m.exit(ExitCode)
}
