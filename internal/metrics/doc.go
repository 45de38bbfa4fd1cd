// Package metrics exports pipeline counters and the latest channel values
// in Prometheus format.
//
// Metrics implements scheduler.Observer, so it sees every reading, read
// error, flush and state change without the pipeline knowing about it. The
// status server exposes the registry on /metrics.
package metrics
