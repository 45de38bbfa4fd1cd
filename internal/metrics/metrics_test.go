package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/rx380-logger/internal/buffer"
	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/scheduler"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := New(reg, "main")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m, reg
}

func TestMetrics_Readings(t *testing.T) {
	m, _ := newTestMetrics(t)
	ts := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	r, err := meter.NewReading("main", ts, []string{"voltage_l1", "frequency"}, []float64{230.1, 50})
	if err != nil {
		t.Fatal(err)
	}

	m.OnReading(r)
	m.OnReading(r)
	m.OnReadError(errors.New("timeout"))

	if got := testutil.ToFloat64(m.reads.WithLabelValues("ok")); got != 2 {
		t.Errorf("reads ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.reads.WithLabelValues("error")); got != 1 {
		t.Errorf("reads error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.channelValue.WithLabelValues("voltage_l1")); got != 230.1 {
		t.Errorf("channel voltage_l1 = %v, want 230.1", got)
	}
	if got := testutil.ToFloat64(m.lastReading); got != float64(ts.Unix()) {
		t.Errorf("last reading = %v, want %v", got, ts.Unix())
	}
}

func TestMetrics_Flush(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.OnFlush(sink.FlushResult{
		Readings: 12,
		Written:  map[string]int{"csv": 12, "sqlite": 12},
		Failures: []*sink.SinkWriteError{{Sink: "postgres", Rows: 12, Err: errors.New("down")}},
	})

	if got := testutil.ToFloat64(m.flushes); got != 1 {
		t.Errorf("flushes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sinkRows.WithLabelValues("csv")); got != 12 {
		t.Errorf("csv rows = %v, want 12", got)
	}
	if got := testutil.ToFloat64(m.sinkWrites.WithLabelValues("postgres", "error")); got != 1 {
		t.Errorf("postgres errors = %v, want 1", got)
	}
}

func TestMetrics_State(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.OnStateChange(scheduler.Running, scheduler.Paused)

	expected := `
# HELP rx380_pipeline_state 1 for the current pipeline state, 0 otherwise.
# TYPE rx380_pipeline_state gauge
rx380_pipeline_state{device="main",state="paused"} 1
rx380_pipeline_state{device="main",state="running"} 0
rx380_pipeline_state{device="main",state="stopped"} 0
rx380_pipeline_state{device="main",state="stopping"} 0
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "rx380_pipeline_state"); err != nil {
		t.Error(err)
	}
}

func TestWatchBuffer(t *testing.T) {
	reg := prometheus.NewRegistry()
	buf := buffer.New(2, buffer.DropOldest)
	if err := WatchBuffer(reg, "main", buf); err != nil {
		t.Fatalf("WatchBuffer() error = %v", err)
	}

	for i := range 3 {
		r, _ := meter.NewReading("main", time.Unix(int64(i), 0), []string{"v"}, []float64{1})
		buf.Push(r)
	}

	expected := `
# HELP rx380_buffer_dropped_total Readings evicted from a full buffer.
# TYPE rx380_buffer_dropped_total counter
rx380_buffer_dropped_total{device="main"} 1
# HELP rx380_buffer_length Readings waiting for the next flush.
# TYPE rx380_buffer_length gauge
rx380_buffer_length{device="main"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, "main"); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg, "main"); err == nil {
		t.Error("second New() on the same registry should fail")
	}
}

var _ scheduler.Observer = (*Metrics)(nil)
