// Package buffer holds readings between meter reads and sink flushes.
//
// SampleBuffer is a fixed-capacity ring guarded by one mutex. Push never
// blocks: when the ring is full the oldest reading is evicted. DrainAll is
// the only other way out, so no reading is ever delivered twice.
package buffer
