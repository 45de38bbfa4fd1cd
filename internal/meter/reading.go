package meter

import (
	"encoding/json"
	"fmt"
	"time"
)

// Reading is one complete snapshot of every channel of a RegisterMap.
//
// A Reading is immutable. Values are in map order and Channels returns the
// matching names.
type Reading struct {
	device    string
	timestamp time.Time
	channels  []string
	values    []float64
}

// NewReading builds a Reading. timestamp is normalised to UTC and truncated
// to the second. channels and values must have the same length.
func NewReading(device string, timestamp time.Time, channels []string, values []float64) (Reading, error) {
	if len(channels) != len(values) {
		return Reading{}, fmt.Errorf("meter: %d channels but %d values", len(channels), len(values))
	}

	r := Reading{
		device:    device,
		timestamp: timestamp.UTC().Truncate(time.Second),
		channels:  make([]string, len(channels)),
		values:    make([]float64, len(values)),
	}
	copy(r.channels, channels)
	copy(r.values, values)
	return r, nil
}

// Device returns the name of the meter the reading came from.
func (r Reading) Device() string {
	return r.device
}

// Timestamp returns the UTC acquisition time, truncated to the second.
func (r Reading) Timestamp() time.Time {
	return r.timestamp
}

// IsZero reports whether r is the zero Reading.
func (r Reading) IsZero() bool {
	return len(r.channels) == 0 && r.timestamp.IsZero()
}

// Len returns the number of channels.
func (r Reading) Len() int {
	return len(r.values)
}

// Channels returns a copy of the channel names in map order.
func (r Reading) Channels() []string {
	out := make([]string, len(r.channels))
	copy(out, r.channels)
	return out
}

// Values returns a copy of the values in map order.
func (r Reading) Values() []float64 {
	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}

// Value returns the value of the named channel.
func (r Reading) Value(name string) (float64, error) {
	for i, ch := range r.channels {
		if ch == name {
			return r.values[i], nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
}

// Map returns the values keyed by channel name.
func (r Reading) Map() map[string]float64 {
	out := make(map[string]float64, len(r.channels))
	for i, ch := range r.channels {
		out[ch] = r.values[i]
	}
	return out
}

type readingJSON struct {
	Timestamp time.Time          `json:"timestamp"`
	Device    string             `json:"device"`
	Values    map[string]float64 `json:"values"`
}

// MarshalJSON encodes the reading as {"timestamp", "device", "values"}.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingJSON{
		Timestamp: r.timestamp,
		Device:    r.device,
		Values:    r.Map(),
	})
}
