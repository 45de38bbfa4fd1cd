package sink

import (
	"errors"
	"fmt"
)

// Sentinel errors for sink operations.
var (
	// ErrBusy indicates the sink's previous write has not returned yet.
	ErrBusy = errors.New("sink: previous write still in progress")

	// ErrMixedChannels indicates a batch whose readings disagree on channels.
	ErrMixedChannels = errors.New("sink: readings in batch have different channels")
)

// SinkWriteError reports one sink's failure to persist a batch.
//
//	var swe *sink.SinkWriteError
//	if errors.As(err, &swe) {
//	    log.Warn("sink failed", "sink", swe.Sink, "rows", swe.Rows)
//	}
type SinkWriteError struct {
	Sink string
	Rows int
	Err  error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("sink %s: writing %d rows: %v", e.Sink, e.Rows, e.Err)
}

func (e *SinkWriteError) Unwrap() error {
	return e.Err
}

// PartialWriteError reports a write that stored the first Rows rows of its
// batch before failing. Only the remaining rows are kept for retry.
type PartialWriteError struct {
	Rows int
	Err  error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("stored %d rows before failing: %v", e.Rows, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}
