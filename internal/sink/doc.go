// Package sink persists batches of meter readings to one or more outputs.
//
// A Sink writes a whole batch or reports an error. The Manager fans each
// flush out to every enabled sink on a bounded worker pool and joins them
// before returning, so one slow or failing destination never blocks or
// corrupts another.
//
// # Failure isolation
//
// Sinks are independent; there is no cross-sink transaction. When a sink
// fails, its rows are kept in a per-sink backlog (bounded, oldest dropped
// first) and prepended to that sink's next flush. Healthy sinks only ever
// see each reading once.
//
// # Sinks
//
//	csv          daily <device>_data_<date>.csv, header once per file
//	spreadsheet  daily <device>_data_<date>.xlsx, rewritten via temp file + rename
//	sqlite       one transaction per flush, prepared insert per row
//	postgres     one transaction per flush, COPY
//	influxdb     one point per reading
//	tsdb         one line-protocol POST per flush
//	mqtt         one message per reading, retained latest
//	redis        latest reading hash with TTL
package sink
