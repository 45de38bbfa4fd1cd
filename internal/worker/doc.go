// Package worker offloads blocking I/O onto a bounded set of goroutines.
//
// Register reads and sink writes go through a Pool so the scheduler loop
// only ever waits at Do, and every wait honours the caller's context.
// A task that ignores cancellation keeps its slot until it returns; the
// caller is released as soon as its context ends.
package worker
