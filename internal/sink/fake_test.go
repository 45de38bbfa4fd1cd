package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
)

var errSinkDown = errors.New("sink down")

// fakeSink records every batch it is given.
type fakeSink struct {
	name string

	mu      sync.Mutex
	fail    bool
	panics  bool
	batches [][]meter.Reading
	closed  bool
}

func newFakeSink(name string) *fakeSink {
	return &fakeSink{name: name}
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Write(_ context.Context, batch []meter.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("sink exploded")
	}
	if f.fail {
		return errSinkDown
	}
	f.batches = append(f.batches, append([]meter.Reading(nil), batch...))
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

// written flattens every successful batch.
func (f *fakeSink) written() []meter.Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []meter.Reading
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

var testChannels = []string{"voltage_l1", "current_l1", "frequency"}

// testReading builds a reading at base+offset seconds with voltage 220+i/10.
func testReading(t *testing.T, base time.Time, i int) meter.Reading {
	t.Helper()
	r, err := meter.NewReading("rx380", base.Add(time.Duration(i)*time.Second), testChannels,
		[]float64{220 + float64(i)/10, 1.234, 50})
	if err != nil {
		t.Fatalf("NewReading() error = %v", err)
	}
	return r
}

func testBatch(t *testing.T, base time.Time, from, n int) []meter.Reading {
	t.Helper()
	out := make([]meter.Reading, n)
	for i := range out {
		out[i] = testReading(t, base, from+i)
	}
	return out
}

func timestamps(rs []meter.Reading) []time.Time {
	out := make([]time.Time, len(rs))
	for i, r := range rs {
		out[i] = r.Timestamp()
	}
	return out
}
