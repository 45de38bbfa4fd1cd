// Package scheduler runs the read/buffer/flush loop.
//
// One goroutine owns the loop. Each cycle it either reads the meter and
// pushes the reading into the buffer (Running) or skips the read (Paused),
// flushes when the cadence says so, and finally resets the liveness
// monitor. Operator commands are applied between cycles.
//
// # States
//
//	Running  --pause-->  Paused
//	Paused   --resume--> Running
//	any      --quit / ctx done--> Stopping --final flush--> Stopped
//
// # Cadence
//
// Fixed cadence reads every read interval and flushes after
// ceil(flush / read) successful reads. Clock cadence aligns reads to
// multiples of the read interval since local midnight and flushes when a
// cycle crosses the next flush-interval boundary, so files line up with
// wall-clock marks (10:00, 10:10, ...).
package scheduler
