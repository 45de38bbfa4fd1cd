package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/rx380-logger/internal/buffer"
	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/scheduler"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

const namespace = "rx380"

// Metrics holds every collector the logger exports.
type Metrics struct {
	reads        *prometheus.CounterVec
	flushes      prometheus.Counter
	sinkWrites   *prometheus.CounterVec
	sinkRows     *prometheus.CounterVec
	state        *prometheus.GaugeVec
	lastReading  prometheus.Gauge
	channelValue *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
//
// Parameters:
//   - reg: Registry to register with; use prometheus.NewRegistry() in tests
//   - device: Constant "device" label on every series
//
// Returns:
//   - *Metrics: Ready-to-use observer
//   - error: If a collector is already registered
func New(reg prometheus.Registerer, device string) (*Metrics, error) {
	labels := prometheus.Labels{"device": device}
	m := &Metrics{
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reads_total", ConstLabels: labels,
			Help: "Meter read attempts by result.",
		}, []string{"result"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "flushes_total", ConstLabels: labels,
			Help: "Buffer flushes handed to the sinks.",
		}),
		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sink_writes_total", ConstLabels: labels,
			Help: "Sink batch writes by sink and result.",
		}, []string{"sink", "result"}),
		sinkRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sink_rows_total", ConstLabels: labels,
			Help: "Rows persisted by each sink.",
		}, []string{"sink"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pipeline_state", ConstLabels: labels,
			Help: "1 for the current pipeline state, 0 otherwise.",
		}, []string{"state"}),
		lastReading: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_reading_timestamp_seconds", ConstLabels: labels,
			Help: "Unix time of the newest successful reading.",
		}),
		channelValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "channel_value", ConstLabels: labels,
			Help: "Latest value of each meter channel.",
		}, []string{"channel"}),
	}

	for _, c := range []prometheus.Collector{
		m.reads, m.flushes, m.sinkWrites, m.sinkRows, m.state, m.lastReading, m.channelValue,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	m.setState(scheduler.Running)
	return m, nil
}

// WatchBuffer exports the buffer's length and eviction count.
func WatchBuffer(reg prometheus.Registerer, device string, buf *buffer.SampleBuffer) error {
	labels := prometheus.Labels{"device": device}
	length := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "buffer_length", ConstLabels: labels,
		Help: "Readings waiting for the next flush.",
	}, func() float64 { return float64(buf.Len()) })
	dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Name: "buffer_dropped_total", ConstLabels: labels,
		Help: "Readings evicted from a full buffer.",
	}, func() float64 { return float64(buf.Dropped()) })

	for _, c := range []prometheus.Collector{length, dropped} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("registering buffer metrics: %w", err)
		}
	}
	return nil
}

// OnReading implements scheduler.Observer.
func (m *Metrics) OnReading(r meter.Reading) {
	m.reads.WithLabelValues("ok").Inc()
	m.lastReading.Set(float64(r.Timestamp().Unix()))
	for ch, v := range r.Map() {
		m.channelValue.WithLabelValues(ch).Set(v)
	}
}

// OnReadError implements scheduler.Observer.
func (m *Metrics) OnReadError(error) {
	m.reads.WithLabelValues("error").Inc()
}

// OnFlush implements scheduler.Observer.
func (m *Metrics) OnFlush(result sink.FlushResult) {
	m.flushes.Inc()
	for name, rows := range result.Written {
		m.sinkWrites.WithLabelValues(name, "ok").Inc()
		m.sinkRows.WithLabelValues(name).Add(float64(rows))
	}
	for _, f := range result.Failures {
		m.sinkWrites.WithLabelValues(f.Sink, "error").Inc()
	}
}

// OnStateChange implements scheduler.Observer.
func (m *Metrics) OnStateChange(_, to scheduler.State) {
	m.setState(to)
}

func (m *Metrics) setState(current scheduler.State) {
	for _, s := range []scheduler.State{scheduler.Running, scheduler.Paused, scheduler.Stopping, scheduler.Stopped} {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s.String()).Set(v)
	}
}
