package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/influxdb"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/mqtt"
	"github.com/nerrad567/rx380-logger/internal/infrastructure/tsdb"
	"github.com/nerrad567/rx380-logger/internal/meter"
)

// RowCopier bulk-loads rows in one transaction (postgres.Client).
type RowCopier interface {
	CopyRows(ctx context.Context, columns []string, rows [][]any) (int64, error)
}

// PostgresSink copies readings into PostgreSQL or TimescaleDB.
type PostgresSink struct {
	copier RowCopier
}

// NewPostgres creates the postgres sink.
func NewPostgres(copier RowCopier) *PostgresSink {
	return &PostgresSink{copier: copier}
}

// Name implements Sink.
func (s *PostgresSink) Name() string { return "postgres" }

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, batch []meter.Reading) error {
	channels, err := batchChannels(batch)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	columns := append([]string{"device_id", "timestamp"}, channels...)
	rows := make([][]any, len(batch))
	for i, r := range batch {
		row := make([]any, 0, len(columns))
		row = append(row, r.Device(), r.Timestamp())
		for _, v := range r.Values() {
			row = append(row, v)
		}
		rows[i] = row
	}

	n, err := s.copier.CopyRows(ctx, columns, rows)
	if err != nil {
		return err
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copied %d of %d rows", n, len(rows))
	}
	return nil
}

// PointWriter writes InfluxDB points synchronously (influxdb.Client).
type PointWriter interface {
	WritePoints(ctx context.Context, points ...*write.Point) error
}

// InfluxSink writes one point per reading, tagged with device and site.
type InfluxSink struct {
	writer      PointWriter
	measurement string
	site        string
}

// NewInfluxDB creates the influxdb sink.
func NewInfluxDB(writer PointWriter, measurement, site string) *InfluxSink {
	return &InfluxSink{writer: writer, measurement: measurement, site: site}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Write implements Sink.
func (s *InfluxSink) Write(ctx context.Context, batch []meter.Reading) error {
	if len(batch) == 0 {
		return nil
	}
	points := make([]*write.Point, len(batch))
	for i, r := range batch {
		points[i] = influxdb.NewPoint(s.measurement, s.tags(r), fieldsOf(r), r.Timestamp())
	}
	return s.writer.WritePoints(ctx, points...)
}

func (s *InfluxSink) tags(r meter.Reading) map[string]string {
	tags := map[string]string{"device": r.Device()}
	if s.site != "" {
		tags["site"] = s.site
	}
	return tags
}

// LineWriter posts line-protocol lines (tsdb.Client).
type LineWriter interface {
	WriteLines(ctx context.Context, lines []string) error
}

// TSDBSink sends the batch to VictoriaMetrics as line protocol.
type TSDBSink struct {
	writer      LineWriter
	measurement string
	site        string
}

// NewTSDB creates the tsdb sink.
func NewTSDB(writer LineWriter, measurement, site string) *TSDBSink {
	return &TSDBSink{writer: writer, measurement: measurement, site: site}
}

// Name implements Sink.
func (s *TSDBSink) Name() string { return "tsdb" }

// Write implements Sink.
func (s *TSDBSink) Write(ctx context.Context, batch []meter.Reading) error {
	if len(batch) == 0 {
		return nil
	}
	lines := make([]string, len(batch))
	for i, r := range batch {
		tags := map[string]string{"device": r.Device()}
		if s.site != "" {
			tags["site"] = s.site
		}
		lines[i] = tsdb.FormatLine(s.measurement, tags, r.Map(), r.Timestamp())
	}
	return s.writer.WriteLines(ctx, lines)
}

// Publisher publishes MQTT messages (mqtt.Client).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
}

// MQTTSink publishes every reading and retains the newest one.
type MQTTSink struct {
	pub    Publisher
	topics mqtt.Topics
}

// NewMQTT creates the mqtt sink.
func NewMQTT(pub Publisher, topics mqtt.Topics) *MQTTSink {
	return &MQTTSink{pub: pub, topics: topics}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Write publishes each reading in order, then the last one retained on the
// latest topic. A failure part-way reports the whole batch as failed; the
// retry republishes it, so subscribers may see duplicates after an outage.
func (s *MQTTSink) Write(ctx context.Context, batch []meter.Reading) error {
	if len(batch) == 0 {
		return nil
	}

	var last []byte
	for _, r := range batch {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding reading: %w", err)
		}
		if err := s.pub.Publish(ctx, s.topics.Reading(), payload, false); err != nil {
			return err
		}
		last = payload
	}
	return s.pub.Publish(ctx, s.topics.Latest(), last, true)
}

// LatestStore caches the newest reading per device (redis.Client).
type LatestStore interface {
	StoreLatest(ctx context.Context, device string, fields map[string]any) error
}

// RedisSink keeps the newest reading of each flush in a hot cache.
type RedisSink struct {
	store LatestStore
}

// NewRedis creates the redis sink.
func NewRedis(store LatestStore) *RedisSink {
	return &RedisSink{store: store}
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Write stores only the newest reading; older rows in the batch are
// superseded by definition.
func (s *RedisSink) Write(ctx context.Context, batch []meter.Reading) error {
	if len(batch) == 0 {
		return nil
	}
	last := batch[len(batch)-1]
	fields := fieldsOf(last)
	fields["timestamp"] = last.Timestamp().Format(time.RFC3339)
	return s.store.StoreLatest(ctx, last.Device(), fields)
}
