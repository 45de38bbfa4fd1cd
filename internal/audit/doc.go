// Package audit keeps a durable trail of pipeline events in SQLite.
//
// The Recorder observes the scheduler and writes one row per transition:
// a state change, the meter becoming unreachable or coming back, a sink
// starting to fail or recovering. Repeated failures of the same kind are
// not recorded again until the condition clears, so an outage produces two
// rows however long it lasts.
//
// Rows are written on a background goroutine; the scheduler never waits
// on the database. Events are dropped, and counted, if the queue fills.
package audit
