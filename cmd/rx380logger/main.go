// RX380 logger - three-phase power meter acquisition pipeline
//
// rx380logger polls an RX380-class meter over Modbus, buffers the readings
// and fans each batch out to the configured sinks (daily CSV and
// spreadsheet files, SQLite, PostgreSQL, InfluxDB, VictoriaMetrics, MQTT,
// Redis). Operators pause, resume and quit it from the console, over MQTT,
// through the status API, or with SIGINT/SIGTERM.
//
// The process exits with status 1 when the liveness watchdog expires;
// rx380supervisor restarts it.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/nerrad567/rx380-logger/migrations"

	"github.com/nerrad567/rx380-logger/internal/audit"
	"github.com/nerrad567/rx380-logger/internal/buffer"
	"github.com/nerrad567/rx380-logger/internal/control"
	"github.com/nerrad567/rx380-logger/internal/dashboard"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/logging"
	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/metrics"
	"github.com/nerrad567/rx380-logger/internal/scheduler"
	"github.com/nerrad567/rx380-logger/internal/sink"
	"github.com/nerrad567/rx380-logger/internal/status"
	"github.com/nerrad567/rx380-logger/internal/watchdog"
	"github.com/nerrad567/rx380-logger/internal/worker"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// startupTimeout bounds connecting to every enabled sink.
const startupTimeout = 30 * time.Second

// eventFlushTimeout bounds writing queued pipeline events at shutdown.
const eventFlushTimeout = 5 * time.Second

func main() {
	// SIGINT and SIGTERM are turned into a quit command by the control
	// package, so the scheduler still gets its final flush.
	if err := run(context.Background(), os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelling it stops the pipeline like a quit command
//   - stdin: Console command source when control.stdin is enabled
//   - stdout: Console mirror when logging.console is enabled
//
// Returns:
//   - error: nil on clean shutdown, or error describing a startup failure
func run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := logging.Default()
	log.Info("starting rx380 logger",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	runID := uuid.NewString()
	root := logging.New(cfg.Logging, version)
	defer root.Close() //nolint:errcheck // nothing left to log to
	log = root.With("run_id", runID, "device", cfg.Meter.DeviceName)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("loading site timezone: %w", err)
	}

	commands := control.NewChannel(0)
	go control.WatchSignals(ctx, commands, log)

	// Meter
	regs, err := meter.FromConfig(cfg.Meter)
	if err != nil {
		return fmt.Errorf("building register map: %w", err)
	}
	pool, err := meter.NewConnectionPool(cfg.Meter.PoolSize, meter.NewModbusFactory(cfg.Meter))
	if err != nil {
		return fmt.Errorf("opening meter transport: %w", err)
	}
	defer func() {
		if closeErr := pool.Close(); closeErr != nil {
			log.Error("error closing meter transport", "error", closeErr)
		}
	}()
	readWorkers := worker.New("meter", cfg.Pipeline.ReadWorkers)
	defer shutdownPool(readWorkers, cfg.Pipeline.ShutdownTimeout, log)

	client := meter.NewMeterClient(cfg.Meter.DeviceName, regs, pool, readWorkers)
	client.SetLogger(log.With("component", "meter"))
	log.Info("meter transport open",
		"mode", cfg.Meter.Mode,
		"slave_id", cfg.Meter.SlaveID,
		"channels", regs.Len(),
	)

	// Sinks
	startCtx, startCancel := context.WithTimeout(ctx, startupTimeout)
	st, err := openStack(startCtx, cfg, regs, loc, runID, log)
	startCancel()
	if err != nil {
		return err
	}
	defer st.Close(log)

	sinkWorkers := worker.New("sinks", cfg.Pipeline.SinkWorkers)
	defer shutdownPool(sinkWorkers, cfg.Pipeline.ShutdownTimeout, log)
	manager := sink.NewManager(sinkWorkers, st.sinks,
		sink.WithTimeout(cfg.Pipeline.SinkTimeout),
		sink.WithBacklogLimit(cfg.Pipeline.BacklogLimit),
	)
	manager.SetLogger(log.With("component", "sink"))
	defer func() {
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing sinks", "error", closeErr)
		}
	}()

	policy, err := buffer.ParseOverflowPolicy(cfg.Pipeline.OverflowPolicy)
	if err != nil {
		return err
	}
	buf := buffer.New(cfg.Pipeline.BufferCapacity, policy)

	// Observers
	tracker := status.NewTracker()
	observers := []scheduler.Observer{tracker}
	if cfg.Logging.Console {
		observers = append(observers, status.NewConsole(stdout, loc))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg, cfg.Meter.DeviceName)
	if err != nil {
		return err
	}
	if err := metrics.WatchBuffer(reg, cfg.Meter.DeviceName, buf); err != nil {
		return err
	}
	observers = append(observers, m)

	var hub *status.Hub
	if cfg.API.Enabled {
		hub = status.NewHub(log.With("component", "stream"))
		observers = append(observers, hub)
	}

	// Event trail
	var events status.EventLister
	if st.db != nil {
		repo := audit.NewSQLiteRepository(st.db.DB)
		events = repo
		recorder := audit.NewRecorder(repo)
		recorder.SetLogger(log.With("component", "audit"))
		recorder.Start()
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), eventFlushTimeout)
			defer flushCancel()
			if closeErr := recorder.Close(flushCtx); closeErr != nil {
				log.Error("error closing event trail", "error", closeErr)
			}
		}()
		recorder.Record(audit.KindStarted, "pipeline", "logger started", map[string]any{
			"run_id":  runID,
			"version": version,
			"sinks":   len(st.sinks),
		})
		observers = append(observers, recorder)
	}

	// Control sources
	if cfg.Control.Stdin {
		go func() {
			if readErr := control.ReadLines(ctx, stdin, commands, log); readErr != nil {
				log.Warn("console control stopped", "error", readErr)
			}
		}()
	}
	if cfg.Control.MQTT && st.mqtt != nil {
		topic := st.mqtt.Topics().Control()
		if subErr := control.SubscribeMQTT(ctx, st.mqtt, topic, commands, log); subErr != nil {
			return fmt.Errorf("subscribing to control topic: %w", subErr)
		}
		log.Info("listening for MQTT commands", "topic", topic)
	}

	// Status server
	if cfg.API.Enabled {
		srv, srvErr := status.New(status.Deps{
			Config:    cfg.API,
			Logger:    log.With("component", "status"),
			Tracker:   tracker,
			Sinks:     manager,
			Commands:  commands,
			Events:    events,
			Dashboard: dashboard.Handler(cfg.API.DashboardDir),
			Hub:       hub,
			Gatherer:  reg,
			Checks:    st.checks,
			DataPath:  dataPath(cfg),
			Device:    cfg.Meter.DeviceName,
			RunID:     runID,
			Version:   version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating status server: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return startErr
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing status server", "error", closeErr)
			}
		}()
	}

	// Watchdog
	var heartbeat scheduler.Heartbeat
	if cfg.Watchdog.Enabled {
		wd := watchdog.New(cfg.Watchdog.Timeout, watchdog.WithLogger(log))
		wd.Start()
		defer wd.Stop()
		heartbeat = wd
		log.Info("watchdog armed", "timeout", cfg.Watchdog.Timeout.String())
	}

	cadence, err := scheduler.ParseCadence(cfg.Pipeline.Cadence)
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.Config{
		ReadInterval:    cfg.Pipeline.ReadInterval,
		FlushInterval:   cfg.Pipeline.FlushInterval,
		Cadence:         cadence,
		Location:        loc,
		ShutdownTimeout: cfg.Pipeline.ShutdownTimeout,
	}, scheduler.Deps{
		Reader:    client,
		Buffer:    buf,
		Flusher:   manager,
		Heartbeat: heartbeat,
		Observers: observers,
		Logger:    log.With("component", "scheduler"),
	})

	log.Info("sinks ready", "count", manager.Len())
	if err := sched.Run(ctx, commands.C()); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	log.Info("rx380 logger stopped")
	return nil
}

// shutdownPool waits up to timeout for p's running tasks. A stuck meter read
// or sink write is abandoned so that quit still exits.
func shutdownPool(p *worker.Pool, timeout time.Duration, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		log.Warn("abandoning worker tasks at shutdown", "pool", p.Name(), "error", err)
	}
}

// getConfigPath returns the configuration file path.
// Uses RX380_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("RX380_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// dataPath is the directory whose free space /health reports: the first
// enabled local sink's folder.
func dataPath(cfg *config.Config) string {
	switch {
	case cfg.Sinks.CSV.Enabled:
		return cfg.Sinks.CSV.Folder
	case cfg.Sinks.Spreadsheet.Enabled:
		return cfg.Sinks.Spreadsheet.Folder
	default:
		return "/"
	}
}
