// rx380supervisor keeps rx380logger running.
//
// The logger exits with status 1 when its watchdog expires and with status 0
// after an operator quit. The supervisor restarts it after any non-zero
// exit, with exponential backoff, and kills it if its status API stops
// answering. Both binaries read the same configuration file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/logging"
	"github.com/nerrad567/rx380-logger/internal/process"
)

var version = "dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	root := logging.New(cfg.Logging, version)
	defer root.Close() //nolint:errcheck // nothing left to log to
	log := root.With("component", "supervisor", "run_id", uuid.NewString())

	mgr := process.NewManager(childConfig(cfg, configPath))
	mgr.SetLogger(log)

	log.Info("supervising rx380logger",
		"binary", cfg.Supervisor.Binary,
		"restart_delay", cfg.Supervisor.RestartDelay.String(),
		"max_restart_delay", cfg.Supervisor.MaxRestartDelay.String(),
		"health_url", healthURL(cfg),
	)

	if err := mgr.Run(ctx); err != nil {
		return err
	}
	stats := mgr.Stats()
	log.Info("supervisor exiting", "restarts", stats.RestartCount, "last_exit_code", stats.LastExitCode)
	return nil
}

// childConfig maps the supervisor section onto a process.Config. The child
// is pointed at the same configuration file.
func childConfig(cfg *config.Config, configPath string) process.Config {
	pc := process.DefaultConfig("rx380logger", cfg.Supervisor.Binary, cfg.Supervisor.Args)
	pc.Env = []string{"RX380_CONFIG=" + configPath}
	if cfg.Supervisor.RestartDelay > 0 {
		pc.RestartDelay = cfg.Supervisor.RestartDelay
	}
	if cfg.Supervisor.MaxRestartDelay > 0 {
		pc.MaxRestartDelay = cfg.Supervisor.MaxRestartDelay
	}
	pc.MaxRestartAttempts = cfg.Supervisor.MaxRestartAttempts
	if cfg.Supervisor.HealthCheckInterval > 0 {
		pc.HealthCheckInterval = cfg.Supervisor.HealthCheckInterval
	}
	// The child's final flush may take the whole shutdown timeout.
	if grace := cfg.Pipeline.ShutdownTimeout + cfg.Pipeline.SinkTimeout; grace > pc.GracefulTimeout {
		pc.GracefulTimeout = grace
	}
	if url := healthURL(cfg); url != "" {
		pc.HealthCheckFunc = process.HTTPHealthCheck(url, nil)
	}
	return pc
}

// healthURL is the child's health endpoint, empty when the status API is off.
func healthURL(cfg *config.Config) string {
	if !cfg.API.Enabled {
		return ""
	}
	host := cfg.API.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d/api/v1/health", host, cfg.API.Port)
}

func getConfigPath() string {
	if path := os.Getenv("RX380_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
