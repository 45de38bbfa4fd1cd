// rx380token issues operator tokens for the logger's control API.
//
// It reads api.control_secret from the same configuration file the logger
// uses (RX380_CONFIG, RX380_API_CONTROL_SECRET) and prints a signed token:
//
//	rx380token -operator alice -ttl 720h
//
// Send it as "Authorization: Bearer <token>" with POST /api/v1/control/{command}.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nerrad567/rx380-logger/internal/auth"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/config"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, loads the config and writes one token line to stdout.
func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rx380token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	operator := fs.String("operator", "", "operator name recorded with each command (required)")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	configPath := fs.String("config", getConfigPath(), "logger configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.ControlSecret == "" {
		return errors.New("api.control_secret is not set; control requests are not authenticated")
	}

	token, err := auth.IssueToken(*operator, cfg.API.ControlSecret, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}

// getConfigPath returns RX380_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("RX380_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
