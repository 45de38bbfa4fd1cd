package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

var errMeterTimeout = errors.New("meter timeout")

// fakeClock is advanced manually by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeReader returns a reading stamped with now() whose voltage is the
// call number, or errMeterTimeout when fail is set.
type fakeReader struct {
	t   *testing.T
	now func() time.Time

	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeReader) ReadReading(context.Context) (meter.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return meter.Reading{}, errMeterTimeout
	}
	return meter.NewReading("rx380", f.now(), []string{"voltage_l1"}, []float64{float64(f.calls)})
}

func (f *fakeReader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeReader) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

type fakeFlusher struct {
	mu      sync.Mutex
	batches [][]meter.Reading
}

func (f *fakeFlusher) Flush(_ context.Context, batch []meter.Reading) sink.FlushResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	return sink.FlushResult{Readings: len(batch), Written: map[string]int{"fake": len(batch)}}
}

func (f *fakeFlusher) snapshot() [][]meter.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]meter.Reading(nil), f.batches...)
}

type countingHeartbeat struct {
	mu    sync.Mutex
	count int
}

func (h *countingHeartbeat) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
}

func (h *countingHeartbeat) resets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

type recordingObserver struct {
	mu          sync.Mutex
	readings    int
	readErrors  int
	flushes     int
	transitions []string
}

func (o *recordingObserver) OnReading(meter.Reading) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.readings++
}

func (o *recordingObserver) OnReadError(error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.readErrors++
}

func (o *recordingObserver) OnFlush(sink.FlushResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushes++
}

func (o *recordingObserver) OnStateChange(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, from.String()+"->"+to.String())
}

func voltages(batch []meter.Reading) []float64 {
	out := make([]float64, len(batch))
	for i, r := range batch {
		v, _ := r.Value("voltage_l1")
		out[i] = v
	}
	return out
}
