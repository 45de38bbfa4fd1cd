package sink

import (
	"context"
	"slices"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
)

// Sink persists readings to one destination.
//
// Write must persist the whole batch or return an error; a partially
// written batch is reported as a failure. Implementations that hold
// resources also implement io.Closer.
type Sink interface {
	Name() string
	Write(ctx context.Context, batch []meter.Reading) error
}

// SinkState is the health of one sink as seen by the Manager.
type SinkState struct {
	Name                string    `json:"name"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	LastErrorAt         time.Time `json:"last_error_at,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Backlog             int       `json:"backlog"`
	Written             uint64    `json:"written"`
}

// Healthy reports whether the last write succeeded.
func (s SinkState) Healthy() bool {
	return s.ConsecutiveFailures == 0
}

// rowTimeLayout is the timestamp layout used in file and row outputs.
const rowTimeLayout = "2006-01-02 15:04:05"

// batchChannels returns the channel list shared by every reading in batch.
func batchChannels(batch []meter.Reading) ([]string, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	channels := batch[0].Channels()
	for _, r := range batch[1:] {
		if !slices.Equal(channels, r.Channels()) {
			return nil, ErrMixedChannels
		}
	}
	return channels, nil
}

// fieldsOf converts a reading's values for clients that take map[string]any.
func fieldsOf(r meter.Reading) map[string]any {
	values := r.Map()
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
