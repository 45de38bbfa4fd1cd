package status

import (
	"sync"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/scheduler"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

// Snapshot is a point-in-time copy of the Tracker.
type Snapshot struct {
	State       scheduler.State `json:"state"`
	StartedAt   time.Time       `json:"started_at"`
	Latest      *meter.Reading  `json:"latest,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	LastErrorAt time.Time       `json:"last_error_at,omitempty"`
	LastFlush   time.Time       `json:"last_flush,omitempty"`
	Reads       uint64          `json:"reads"`
	ReadErrors  uint64          `json:"read_errors"`
	Flushes     uint64          `json:"flushes"`
	FlushErrors uint64          `json:"flush_errors"`
}

// Tracker records pipeline activity for the status server.
type Tracker struct {
	mu   sync.RWMutex
	now  func() time.Time
	snap Snapshot
}

// NewTracker creates a Tracker in the Running state.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.snap.State = scheduler.Running
	t.snap.StartedAt = t.now()
	return t
}

// OnReading implements scheduler.Observer.
func (t *Tracker) OnReading(r meter.Reading) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Latest = &r
	t.snap.Reads++
}

// OnReadError implements scheduler.Observer.
func (t *Tracker) OnReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.LastError = err.Error()
	t.snap.LastErrorAt = t.now()
	t.snap.ReadErrors++
}

// OnFlush implements scheduler.Observer.
func (t *Tracker) OnFlush(result sink.FlushResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.LastFlush = t.now()
	t.snap.Flushes++
	if !result.OK() {
		t.snap.FlushErrors++
	}
}

// OnStateChange implements scheduler.Observer.
func (t *Tracker) OnStateChange(_, to scheduler.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.State = to
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Latest returns the newest reading, if any.
func (t *Tracker) Latest() (meter.Reading, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snap.Latest == nil {
		return meter.Reading{}, false
	}
	return *t.snap.Latest, true
}
