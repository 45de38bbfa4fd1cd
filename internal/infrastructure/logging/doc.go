// Package logging provides structured logging for the RX380 logger.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the pipeline.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version, run_id) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Rotating file output via lumberjack for unattended edge devices
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "./logs/rx380.log"
//	    max_size: 10     # megabytes
//	    max_backups: 7
//	    max_age: 30      # days
//	    compress: true
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("meter connected", "device", "/dev/ttyUSB0")
//	logger.Error("sink write failed", "sink", "postgres", "error", err)
//
// Never log database URLs with embedded passwords or API tokens.
package logging
