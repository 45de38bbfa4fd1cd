package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/database"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/influxdb"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/logging"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/mqtt"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/postgres"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/redis"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/tsdb"
	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/sink"
	"github.com/nerrad567/rx380-logger/internal/status"
)

// stack holds the sinks and the infrastructure clients behind them.
type stack struct {
	sinks  []sink.Sink
	checks map[string]status.HealthChecker
	mqtt   *mqtt.Client

	// db is set when the SQLite sink is enabled; it also holds the event trail.
	db *database.DB

	// closers run in reverse order of opening.
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func (s *stack) track(name string, check status.HealthChecker, closeFn func() error) {
	if check != nil {
		s.checks[name] = check
	}
	s.closers = append(s.closers, namedCloser{name: name, close: closeFn})
}

// Close releases every client, newest first.
func (s *stack) Close(log *logging.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		log.Info("closing " + c.name)
		if err := c.close(); err != nil {
			log.Error("error closing "+c.name, "error", err)
		}
	}
	s.closers = nil
}

// openStack connects every enabled sink. Any enabled sink that cannot be
// reached aborts startup; the clients opened so far are closed.
func openStack(ctx context.Context, cfg *config.Config, regs *meter.RegisterMap, loc *time.Location, runID string, log *logging.Logger) (st *stack, err error) {
	st = &stack{checks: make(map[string]status.HealthChecker)}
	defer func() {
		if err != nil {
			st.Close(log)
			st = nil
		}
	}()

	channels := regs.Names()
	device := cfg.Meter.DeviceName

	if cfg.Sinks.CSV.Enabled {
		if err := os.MkdirAll(cfg.Sinks.CSV.Folder, 0o750); err != nil {
			return st, fmt.Errorf("creating csv folder: %w", err)
		}
		st.sinks = append(st.sinks, sink.NewCSV(cfg.Sinks.CSV.Folder, device, loc))
		log.Info("csv sink enabled", "folder", cfg.Sinks.CSV.Folder)
	}

	if cfg.Sinks.Spreadsheet.Enabled {
		if err := os.MkdirAll(cfg.Sinks.Spreadsheet.Folder, 0o750); err != nil {
			return st, fmt.Errorf("creating spreadsheet folder: %w", err)
		}
		st.sinks = append(st.sinks, sink.NewSpreadsheet(cfg.Sinks.Spreadsheet.Folder, device, cfg.Sinks.Spreadsheet.Sheet, loc))
		log.Info("spreadsheet sink enabled", "folder", cfg.Sinks.Spreadsheet.Folder)
	}

	if cfg.Database.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return st, fmt.Errorf("opening database: %w", err)
		}
		st.track("database", db, db.Close)
		st.db = db

		if err := db.Migrate(ctx); err != nil {
			return st, fmt.Errorf("running migrations: %w", err)
		}
		added, err := db.EnsureReadingsTable(ctx, cfg.Database.Table, channels)
		if err != nil {
			return st, fmt.Errorf("preparing readings table: %w", err)
		}
		if len(added) > 0 {
			log.Info("readings table extended", "table", cfg.Database.Table, "columns", added)
		}
		st.sinks = append(st.sinks, sink.NewSQLite(db.DB, cfg.Database.Table))
		log.Info("sqlite sink enabled", "path", db.Path(), "table", cfg.Database.Table)
	}

	if cfg.Postgres.Enabled {
		pg, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return st, fmt.Errorf("connecting to PostgreSQL: %w", err)
		}
		st.track("postgres", pg, pg.Close)

		if err := pg.EnsureReadingsTable(ctx, channels); err != nil {
			return st, fmt.Errorf("preparing postgres table: %w", err)
		}
		st.sinks = append(st.sinks, sink.NewPostgres(pg))
		log.Info("postgres sink enabled", "table", pg.Table())
	}

	if cfg.InfluxDB.Enabled {
		ic, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return st, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		st.track("influxdb", ic, ic.Close)
		st.sinks = append(st.sinks, sink.NewInfluxDB(ic, cfg.InfluxDB.Measurement, cfg.Site.ID))
		log.Info("influxdb sink enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	if cfg.TSDB.Enabled {
		tc, err := tsdb.Connect(ctx, cfg.TSDB)
		if err != nil {
			return st, fmt.Errorf("connecting to TSDB: %w", err)
		}
		st.track("tsdb", tc, tc.Close)
		st.sinks = append(st.sinks, sink.NewTSDB(tc, cfg.TSDB.Measurement, cfg.Site.ID))
		log.Info("tsdb sink enabled", "url", cfg.TSDB.URL)
	}

	if cfg.MQTT.Enabled {
		topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix, device)
		mc, err := mqtt.Connect(cfg.MQTT, topics, runID)
		if err != nil {
			return st, fmt.Errorf("connecting to MQTT: %w", err)
		}
		mc.SetLogger(log.With("component", "mqtt"))
		st.mqtt = mc
		st.track("mqtt", mc, mc.Close)

		if cfg.MQTT.Publish {
			st.sinks = append(st.sinks, sink.NewMQTT(mc, topics))
			log.Info("mqtt sink enabled", "topic", topics.Reading())
		}
	}

	if cfg.Redis.Enabled {
		rc, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return st, fmt.Errorf("connecting to Redis: %w", err)
		}
		st.track("redis", rc, rc.Close)
		st.sinks = append(st.sinks, sink.NewRedis(rc))
		log.Info("redis sink enabled", "key", rc.LatestKey(device))
	}

	if len(st.sinks) == 0 {
		return st, fmt.Errorf("no sinks enabled")
	}
	return st, nil
}
