// rx380migrate inspects and changes the schema of the logger's SQLite file.
//
// It opens database.path from the same configuration file the logger uses
// (RX380_CONFIG) and runs one command:
//
//	rx380migrate status   list applied and pending migrations
//	rx380migrate up       apply pending migrations (the logger does this at start)
//	rx380migrate down     roll back the most recent migration
//
// Stop the logger before running down.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/database"
	_ "github.com/nerrad567/rx380-logger/migrations"
)

const (
	defaultConfigPath = "configs/config.yaml"
	commandTimeout    = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, opens the database and runs the requested command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rx380migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", getConfigPath(), "logger configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	command := "status"
	switch fs.NArg() {
	case 0:
	case 1:
		command = fs.Arg(0)
	default:
		return fmt.Errorf("expected one command, got %d", fs.NArg())
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Database.Enabled {
		return errors.New("database.enabled is false; there is no schema to manage")
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // process exits next

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch command {
	case "status":
		return printStatus(ctx, db, stdout)
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		return printStatus(ctx, db, stdout)
	case "down":
		if err := db.MigrateDown(ctx); err != nil {
			if errors.Is(err, database.ErrNoMigrations) {
				return fmt.Errorf("%s: nothing to roll back", db.Path())
			}
			return err
		}
		return printStatus(ctx, db, stdout)
	default:
		return fmt.Errorf("unknown command %q (want status, up or down)", command)
	}
}

func printStatus(ctx context.Context, db *database.DB, w io.Writer) error {
	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, a := range applied {
		if _, err := fmt.Fprintf(w, "applied  %s  %s\n", a.Version, a.AppliedAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	for _, m := range pending {
		if _, err := fmt.Fprintf(w, "pending  %s  %s\n", m.Version, m.Name); err != nil {
			return err
		}
	}
	return nil
}

// getConfigPath returns RX380_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("RX380_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
