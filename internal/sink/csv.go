package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
)

// CSVSink appends readings to a daily CSV file per device.
type CSVSink struct {
	folder string
	device string
	loc    *time.Location
}

// NewCSV creates a CSV sink writing under folder. Dates follow loc.
func NewCSV(folder, device string, loc *time.Location) *CSVSink {
	if loc == nil {
		loc = time.Local
	}
	return &CSVSink{folder: folder, device: device, loc: loc}
}

// Name implements Sink.
func (s *CSVSink) Name() string { return "csv" }

// Write appends batch to the day's file, writing the header when the file
// is new. Each file receives its rows in a single write followed by fsync.
// When a batch spans midnight and the second file fails, the error is a
// *PartialWriteError counting the rows already appended.
func (s *CSVSink) Write(ctx context.Context, batch []meter.Reading) error {
	channels, err := batchChannels(batch)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.folder, dirPermissions); err != nil {
		return fmt.Errorf("creating csv folder: %w", err)
	}

	stored := 0
	for _, g := range groupByDay(batch, s.folder, s.device, ".csv", s.loc) {
		if err := ctx.Err(); err != nil {
			return partial(stored, err)
		}
		if err := s.appendFile(g, channels); err != nil {
			return partial(stored, err)
		}
		stored += len(g.rows)
	}
	return nil
}

func (s *CSVSink) appendFile(g dayGroup, channels []string) error {
	f, err := os.OpenFile(g.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("opening %s: %w", g.path, err)
	}
	defer f.Close() //nolint:errcheck // Sync error is what matters

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", g.path, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if info.Size() == 0 {
		if err := w.Write(append([]string{"timestamp"}, channels...)); err != nil {
			return fmt.Errorf("encoding header: %w", err)
		}
	}

	record := make([]string, len(channels)+1)
	for _, r := range g.rows {
		record[0] = r.Timestamp().In(s.loc).Format(rowTimeLayout)
		for i, v := range r.Values() {
			record[i+1] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("encoding row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encoding csv: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing %s: %w", g.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", g.path, err)
	}
	return nil
}
