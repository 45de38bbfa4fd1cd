// Package process supervises the rx380logger binary as a child process.
//
// The logger terminates itself with exit status 1 when its liveness
// watchdog expires and exits 0 after an operator "quit". The supervisor
// restarts the child on any non-zero exit, with exponential backoff, and
// treats a clean exit as the end of the run.
//
// Features:
//   - Restart with backoff from RestartDelay doubling up to MaxRestartDelay
//   - Backoff reset once the child has run for StableThreshold
//   - Optional HTTP health probe; a child failing three probes in a row is killed
//   - Child stdout/stderr forwarded line by line to the supervisor's logger
//   - SIGTERM to the child's process group on shutdown, SIGKILL after GracefulTimeout
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:            "rx380logger",
//	    Binary:          "/usr/local/bin/rx380logger",
//	    RestartDelay:    5 * time.Second,
//	    MaxRestartDelay: 5 * time.Minute,
//	    HealthCheckFunc: process.HTTPHealthCheck("http://127.0.0.1:8380/api/v1/health", nil),
//	})
//	mgr.SetLogger(log)
//
//	err := mgr.Run(ctx)
package process
