package buffer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/rx380-logger/internal/meter"
)

// OverflowPolicy selects what Push reports when the ring is full.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest reading and carries on.
	DropOldest OverflowPolicy = iota

	// FlushWhenFull asks the caller to flush as soon as the ring fills.
	// Eviction still happens if the caller does not flush in time.
	FlushWhenFull
)

// ParseOverflowPolicy converts a configuration string to an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(s) {
	case "", "drop_oldest":
		return DropOldest, nil
	case "flush":
		return FlushWhenFull, nil
	default:
		return 0, fmt.Errorf("buffer: unknown overflow policy %q", s)
	}
}

// String returns the configuration name of the policy.
func (p OverflowPolicy) String() string {
	if p == FlushWhenFull {
		return "flush"
	}
	return "drop_oldest"
}

// SampleBuffer is a bounded, ordered ring of readings.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type SampleBuffer struct {
	mu      sync.Mutex
	ring    []meter.Reading
	head    int // index of the oldest reading
	size    int
	policy  OverflowPolicy
	dropped uint64
}

// New creates a buffer holding at most capacity readings (minimum 1).
func New(capacity int, policy OverflowPolicy) *SampleBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SampleBuffer{
		ring:   make([]meter.Reading, capacity),
		policy: policy,
	}
}

// Push appends r, evicting the oldest reading when the ring is full.
//
// Returns:
//   - bool: true when the FlushWhenFull policy wants the caller to flush now
func (b *SampleBuffer) Push(r meter.Reading) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.ring)
	if b.size == capacity {
		b.ring[b.head] = r
		b.head = (b.head + 1) % capacity
		b.dropped++
	} else {
		b.ring[(b.head+b.size)%capacity] = r
		b.size++
	}

	return b.policy == FlushWhenFull && b.size == capacity
}

// DrainAll removes and returns every reading, oldest first.
func (b *SampleBuffer) DrainAll() []meter.Reading {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil
	}

	capacity := len(b.ring)
	out := make([]meter.Reading, b.size)
	for i := 0; i < b.size; i++ {
		idx := (b.head + i) % capacity
		out[i] = b.ring[idx]
		b.ring[idx] = meter.Reading{}
	}
	b.head = 0
	b.size = 0
	return out
}

// PeekLast returns the newest reading without removing it.
func (b *SampleBuffer) PeekLast() (meter.Reading, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return meter.Reading{}, false
	}
	return b.ring[(b.head+b.size-1)%len(b.ring)], true
}

// Len returns the number of buffered readings.
func (b *SampleBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the capacity.
func (b *SampleBuffer) Cap() int {
	return len(b.ring)
}

// Dropped returns how many readings have been evicted since creation.
func (b *SampleBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
