package scheduler

import (
	"fmt"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

// State is the pipeline's lifecycle state.
type State int

// States.
const (
	Running State = iota + 1
	Paused
	Stopping
	Stopped
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText lets State appear as a word in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the names produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Running, Paused, Stopping, Stopped} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("scheduler: unknown state %q", text)
}

// Cadence selects how reads and flushes are timed.
type Cadence int

// Cadences.
const (
	Fixed Cadence = iota
	Clock
)

// ParseCadence parses "fixed" (or "") and "clock".
func ParseCadence(s string) (Cadence, error) {
	switch s {
	case "", "fixed":
		return Fixed, nil
	case "clock":
		return Clock, nil
	default:
		return 0, fmt.Errorf("scheduler: unknown cadence %q", s)
	}
}

// Observer is notified of pipeline events. Calls are made from the
// scheduler goroutine and must not block.
type Observer interface {
	OnReading(r meter.Reading)
	OnReadError(err error)
	OnFlush(result sink.FlushResult)
	OnStateChange(from, to State)
}

// NextBoundary returns the first instant strictly after now that is a whole
// multiple of interval since local midnight in now's location. Boundaries
// restart at each midnight, so an interval that does not divide the day
// still lands on 00:00.
//
//	NextBoundary(10:03:27, 10m) = 10:10:00
//	NextBoundary(10:10:00, 10m) = 10:20:00
//	NextBoundary(23:55:00, 10m) = 00:00:00 next day
func NextBoundary(now time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return now
	}
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	nextMidnight := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())

	n := now.Sub(midnight)/interval + 1
	next := midnight.Add(n * interval)
	if next.After(nextMidnight) {
		return nextMidnight
	}
	return next
}
