package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of the supervised child.
type Status string

// Statuses.
const (
	StatusStopped  Status = "stopped"
	StatusRunning  Status = "running"
	StatusBackoff  Status = "backoff"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// ErrMaxRestarts is returned by Run when MaxRestartAttempts is exhausted.
var ErrMaxRestarts = errors.New("process: max restart attempts reached")

// maxHealthFailures is the number of consecutive failed probes before the
// child is considered hung and killed.
const maxHealthFailures = 3

// healthCheckTimeout bounds a single probe.
const healthCheckTimeout = 5 * time.Second

// Config holds configuration for a supervised child.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	Env []string

	// WorkDir is the working directory. Empty inherits the supervisor's.
	WorkDir string

	// RestartDelay is the first backoff delay; each consecutive failure doubles it.
	RestartDelay time.Duration

	// MaxRestartDelay caps the backoff delay.
	MaxRestartDelay time.Duration

	// StableThreshold is how long a child must run before the backoff resets.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheckFunc probes the running child. Nil disables probing.
	HealthCheckFunc func(ctx context.Context) error

	// HealthCheckInterval is how often to probe.
	HealthCheckInterval time.Duration
}

// DefaultConfig returns a Config with the supervisor's defaults.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartDelay:        5 * time.Second,
		MaxRestartDelay:     5 * time.Minute,
		StableThreshold:     2 * time.Minute,
		GracefulTimeout:     20 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Logger defines the logging interface for the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager supervises one child process.
//
// Thread Safety: Run must be called once; the accessors are safe for
// concurrent use while it runs.
type Manager struct {
	config Config
	logger Logger

	mu           sync.RWMutex
	cmd          *exec.Cmd
	status       Status
	restartCount int
	lastError    error
	lastExitCode int
	startTime    time.Time
}

// NewManager creates a supervisor, filling zero durations with the defaults.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig(cfg.Name, cfg.Binary, cfg.Args)
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = def.RestartDelay
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = def.MaxRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = def.StableThreshold
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = def.GracefulTimeout
	}
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = def.HealthCheckInterval
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

// backoff returns the delay before restart number attempt (1-based).
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return d
}

// Run starts the child and keeps it running until it exits cleanly, the
// restart attempts run out, or ctx is cancelled.
//
// Returns:
//   - error: nil after a clean exit or cancellation, ErrMaxRestarts, or a
//     start failure on the first launch
func (m *Manager) Run(ctx context.Context) error {
	attempt := 0
	for {
		started := time.Now()
		var exitErr error
		exited, err := m.runOnce(ctx)
		switch {
		case err != nil && attempt == 0:
			m.setStatus(StatusFailed, err)
			return err
		case err != nil:
			exitErr = err
		case exited != nil:
			exitErr = exited
		}

		if ctx.Err() != nil {
			m.setStatus(StatusStopped, nil)
			m.logger.Info("supervisor stopped", "name", m.config.Name)
			return nil
		}

		if exitErr == nil {
			m.setStatus(StatusFinished, nil)
			m.logger.Info("child exited cleanly, not restarting", "name", m.config.Name)
			return nil
		}

		if time.Since(started) >= m.config.StableThreshold {
			attempt = 0
		}
		attempt++

		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.setStatus(StatusFailed, exitErr)
			m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return fmt.Errorf("%w: %s: %w", ErrMaxRestarts, m.config.Name, exitErr)
		}

		m.mu.Lock()
		m.restartCount++
		m.mu.Unlock()
		m.setStatus(StatusBackoff, exitErr)

		delay := m.backoff(attempt)
		m.logger.Warn("child failed, restarting",
			"name", m.config.Name,
			"error", exitErr,
			"exit_code", m.LastExitCode(),
			"attempt", attempt,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.setStatus(StatusStopped, nil)
			return nil
		case <-timer.C:
		}
	}
}

// runOnce launches the child and waits for it to exit, fail its health
// probes, or be stopped by ctx. A launch failure is returned as error; the
// child's own exit status is reported through the exitError.
func (m *Manager) runOnce(ctx context.Context) (*exitError, error) {
	//nolint:gosec // Binary comes from the supervisor's own config file
	cmd := exec.Command(m.config.Binary, m.config.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()
	m.logger.Info("child started", "name", m.config.Name, "pid", cmd.Process.Pid)

	var output sync.WaitGroup
	output.Add(2)
	go m.forward(&output, "stdout", stdout)
	go m.forward(&output, "stderr", stderr)

	exitCh := make(chan error, 1)
	go func() {
		output.Wait()
		exitCh <- cmd.Wait()
	}()

	err = m.watch(ctx, cmd, exitCh)
	m.recordExit(cmd, err)
	if err == nil {
		return nil, nil
	}
	return &exitError{err: err}, nil
}

// exitError is a non-clean exit of the child.
type exitError struct {
	err error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// watch waits for the child to exit, probing its health meanwhile.
func (m *Manager) watch(ctx context.Context, cmd *exec.Cmd, exitCh <-chan error) error {
	var probe <-chan time.Time
	if m.config.HealthCheckFunc != nil {
		ticker := time.NewTicker(m.config.HealthCheckInterval)
		defer ticker.Stop()
		probe = ticker.C
	}

	failures := 0
	for {
		select {
		case err := <-exitCh:
			return err

		case <-ctx.Done():
			return m.terminate(cmd, exitCh)

		case <-probe:
			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := m.config.HealthCheckFunc(checkCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					m.logger.Info("health check recovered", "name", m.config.Name, "previous_failures", failures)
				}
				failures = 0
				continue
			}

			failures++
			m.logger.Warn("health check failed", "name", m.config.Name, "error", err, "consecutive_failures", failures)
			if failures >= maxHealthFailures {
				m.logger.Error("child unresponsive, killing", "name", m.config.Name, "failures", failures)
				signalGroup(cmd, syscall.SIGKILL)
				<-exitCh
				return fmt.Errorf("killed after %d failed health checks", failures)
			}
		}
	}
}

// terminate sends SIGTERM to the child's process group and escalates to
// SIGKILL after GracefulTimeout.
func (m *Manager) terminate(cmd *exec.Cmd, exitCh <-chan error) error {
	m.logger.Info("stopping child", "name", m.config.Name, "pid", cmd.Process.Pid)
	signalGroup(cmd, syscall.SIGTERM)

	timer := time.NewTimer(m.config.GracefulTimeout)
	defer timer.Stop()

	select {
	case err := <-exitCh:
		return err
	case <-timer.C:
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
		signalGroup(cmd, syscall.SIGKILL)
		return <-exitCh
	}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	// Negative pid addresses the process group created by Setpgid.
	//nolint:errcheck // ESRCH just means the child already exited
	syscall.Kill(-cmd.Process.Pid, sig)
}

// forward logs each line the child writes. The logger's own JSON lines are
// passed through as the "line" attribute.
func (m *Manager) forward(wg *sync.WaitGroup, stream string, r io.Reader) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.logger.Info("child output", "name", m.config.Name, "stream", stream, "line", scanner.Text())
	}
}

func (m *Manager) recordExit(cmd *exec.Cmd, exitErr error) {
	code := 0
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastExitCode = code
	if exitErr != nil {
		m.lastError = exitErr
	}
}

func (m *Manager) setStatus(s Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
	if err != nil {
		m.lastError = err
	}
}

// Status returns the current status of the child.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// LastError returns the error from the most recent failed run.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// LastExitCode returns the exit status of the most recent run; -1 when the
// child was killed by a signal.
func (m *Manager) LastExitCode() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastExitCode
}

// RestartCount returns the total number of restarts.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// PID returns the current child's process ID, or 0 if none is running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a snapshot of the supervisor.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastExitCode int           `json:"last_exit_code"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the child.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
		LastExitCode: m.lastExitCode,
	}
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		stats.PID = m.cmd.Process.Pid
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}
