// Package status reports what the logger is doing right now.
//
// It has three parts:
//   - Tracker, a scheduler.Observer that keeps the latest reading, the last
//     read error, the pipeline state and running counts
//   - Console, a scheduler.Observer that mirrors readings and errors to a
//     terminal for an operator watching the process
//   - Server, a small chi HTTP server exposing the Tracker, sink health,
//     host health, Prometheus metrics and a control endpoint
//
// The server follows the same lifecycle as the infrastructure clients:
//
//	srv, err := status.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package status
