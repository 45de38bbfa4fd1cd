package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
)

var base = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func reading(t *testing.T, seq int) meter.Reading {
	t.Helper()
	r, err := meter.NewReading("rx380", base.Add(time.Duration(seq)*time.Second), []string{"seq"}, []float64{float64(seq)})
	if err != nil {
		t.Fatalf("NewReading() error = %v", err)
	}
	return r
}

func seqOf(t *testing.T, r meter.Reading) int {
	t.Helper()
	v, err := r.Value("seq")
	if err != nil {
		t.Fatalf("Value(seq) error = %v", err)
	}
	return int(v)
}

func TestSampleBuffer_KeepsNewestOnOverflow(t *testing.T) {
	const capacity = 5
	b := New(capacity, DropOldest)

	for i := 0; i <= capacity; i++ {
		if flush := b.Push(reading(t, i)); flush {
			t.Errorf("Push(%d) = true, want false under drop_oldest", i)
		}
	}

	if b.Len() != capacity {
		t.Errorf("Len() = %d, want %d", b.Len(), capacity)
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}

	got := b.DrainAll()
	if len(got) != capacity {
		t.Fatalf("DrainAll() returned %d readings, want %d", len(got), capacity)
	}
	for i, r := range got {
		if want := i + 1; seqOf(t, r) != want {
			t.Errorf("DrainAll()[%d] = %d, want %d", i, seqOf(t, r), want)
		}
	}
}

func TestSampleBuffer_DrainThenPeek(t *testing.T) {
	b := New(3, DropOldest)

	if _, ok := b.PeekLast(); ok {
		t.Error("PeekLast() on empty buffer ok = true")
	}

	b.Push(reading(t, 1))
	b.Push(reading(t, 2))

	last, ok := b.PeekLast()
	if !ok || seqOf(t, last) != 2 {
		t.Errorf("PeekLast() = %v, %v, want seq 2", last, ok)
	}
	if b.Len() != 2 {
		t.Errorf("Len() after PeekLast = %d, want 2", b.Len())
	}

	first := b.DrainAll()
	if len(first) != 2 {
		t.Fatalf("DrainAll() = %d readings, want 2", len(first))
	}
	if _, ok := b.PeekLast(); ok {
		t.Error("PeekLast() after DrainAll ok = true")
	}
	if again := b.DrainAll(); len(again) != 0 {
		t.Errorf("second DrainAll() = %d readings, want 0", len(again))
	}
}

func TestSampleBuffer_FlushPolicy(t *testing.T) {
	b := New(3, FlushWhenFull)

	for i := 0; i < 2; i++ {
		if b.Push(reading(t, i)) {
			t.Errorf("Push(%d) = true before full", i)
		}
	}
	if !b.Push(reading(t, 2)) {
		t.Error("Push() filling the ring = false, want true")
	}
	if b.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", b.Dropped())
	}

	// Caller ignored the signal; safety-net eviction still applies.
	if !b.Push(reading(t, 3)) {
		t.Error("Push() on full ring = false, want true")
	}
	if b.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", b.Dropped())
	}
}

func TestSampleBuffer_WrapAround(t *testing.T) {
	b := New(3, DropOldest)

	b.Push(reading(t, 1))
	b.Push(reading(t, 2))
	b.DrainAll()

	for i := 3; i <= 7; i++ {
		b.Push(reading(t, i))
	}

	got := b.DrainAll()
	want := []int{5, 6, 7}
	for i, r := range got {
		if seqOf(t, r) != want[i] {
			t.Errorf("DrainAll()[%d] = %d, want %d", i, seqOf(t, r), want[i])
		}
	}
}

func TestSampleBuffer_ConcurrentNoDuplicates(t *testing.T) {
	const total = 1000
	b := New(total, DropOldest)

	readings := make([]meter.Reading, total)
	for i := range readings {
		readings[i] = reading(t, i)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[float64]int)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, r := range readings {
			b.Push(r)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			for _, r := range b.DrainAll() {
				v, _ := r.Value("seq")
				mu.Lock()
				seen[v]++
				mu.Unlock()
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()
	wg.Wait()

	for _, r := range b.DrainAll() {
		v, _ := r.Value("seq")
		seen[v]++
	}

	if len(seen) != total {
		t.Errorf("distinct readings drained = %d, want %d", len(seen), total)
	}
	for seq, n := range seen {
		if n != 1 {
			t.Errorf("reading %v drained %d times", seq, n)
		}
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OverflowPolicy
		wantErr bool
	}{
		{"", DropOldest, false},
		{"drop_oldest", DropOldest, false},
		{"flush", FlushWhenFull, false},
		{"block", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseOverflowPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOverflowPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseOverflowPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
