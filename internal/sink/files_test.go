package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nerrad567/rx380-logger/internal/meter"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return records
}

func TestCSVSink_HeaderOncePerFile(t *testing.T) {
	dir := t.TempDir()
	s := NewCSV(dir, "rx380", time.UTC)
	ctx := context.Background()

	if err := s.Write(ctx, testBatch(t, base, 0, 2)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Write(ctx, testBatch(t, base, 2, 1)); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	records := readCSV(t, filepath.Join(dir, "rx380_data_2026-03-14.csv"))
	want := [][]string{
		{"timestamp", "voltage_l1", "current_l1", "frequency"},
		{"2026-03-14 10:00:00", "220", "1.234", "50"},
		{"2026-03-14 10:00:01", "220.1", "1.234", "50"},
		{"2026-03-14 10:00:02", "220.2", "1.234", "50"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("csv = %v, want %v", records, want)
	}
}

func TestCSVSink_SplitsAtLocalMidnight(t *testing.T) {
	dir := t.TempDir()
	loc := time.FixedZone("UTC+2", 2*60*60)
	s := NewCSV(dir, "rx380", loc)

	// 21:59:59 UTC is 23:59:59 local; the next second is a new local day.
	start := time.Date(2026, 3, 14, 21, 59, 59, 0, time.UTC)
	if err := s.Write(context.Background(), testBatch(t, start, 0, 2)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	day1 := readCSV(t, filepath.Join(dir, "rx380_data_2026-03-14.csv"))
	day2 := readCSV(t, filepath.Join(dir, "rx380_data_2026-03-15.csv"))
	if len(day1) != 2 || len(day2) != 2 {
		t.Fatalf("rows = %d/%d, want header+1 in each file", len(day1), len(day2))
	}
	if day1[1][0] != "2026-03-14 23:59:59" || day2[1][0] != "2026-03-15 00:00:00" {
		t.Errorf("local timestamps = %q, %q", day1[1][0], day2[1][0])
	}
}

func TestCSVSink_RetryAfterMidnightFailureAppendsOnce(t *testing.T) {
	dir := t.TempDir()
	loc := time.FixedZone("UTC+2", 2*60*60)
	s := NewCSV(dir, "rx380", loc)
	ctx := context.Background()

	// A directory in place of the second day's file makes that append fail.
	blocker := filepath.Join(dir, "rx380_data_2026-03-15.csv")
	if err := os.Mkdir(blocker, 0o750); err != nil {
		t.Fatal(err)
	}

	m := newTestManager(t, []Sink{s}, WithBacklogLimit(100))
	start := time.Date(2026, 3, 14, 21, 59, 59, 0, time.UTC)
	result := m.Flush(ctx, testBatch(t, start, 0, 2))

	var pw *PartialWriteError
	if len(result.Failures) != 1 || !errors.As(result.Failures[0], &pw) || pw.Rows != 1 {
		t.Fatalf("Failures = %v, want one PartialWriteError with 1 row", result.Failures)
	}
	if got := m.States()[0].Backlog; got != 1 {
		t.Errorf("Backlog = %d, want 1 (only the unwritten row)", got)
	}

	if err := os.Remove(blocker); err != nil {
		t.Fatal(err)
	}
	result = m.Flush(ctx, nil)
	if !result.OK() || result.Written["csv"] != 1 {
		t.Fatalf("retry result = %+v", result)
	}

	day1 := readCSV(t, filepath.Join(dir, "rx380_data_2026-03-14.csv"))
	day2 := readCSV(t, filepath.Join(dir, "rx380_data_2026-03-15.csv"))
	if len(day1) != 2 || len(day2) != 2 {
		t.Errorf("rows = %d/%d, want header+1 in each file", len(day1), len(day2))
	}
}

func TestCSVSink_RejectsMixedChannels(t *testing.T) {
	s := NewCSV(t.TempDir(), "rx380", time.UTC)
	batch := testBatch(t, base, 0, 1)
	other, err := meter.NewReading("rx380", base, []string{"frequency"}, []float64{50})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Write(context.Background(), append(batch, other)); !errors.Is(err, ErrMixedChannels) {
		t.Errorf("Write() error = %v, want ErrMixedChannels", err)
	}
}

func TestSpreadsheetSink_AppendsAcrossFlushes(t *testing.T) {
	dir := t.TempDir()
	s := NewSpreadsheet(dir, "rx380", "Readings", time.UTC)
	ctx := context.Background()

	if err := s.Write(ctx, testBatch(t, base, 0, 2)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Write(ctx, testBatch(t, base, 2, 1)); err != nil {
		t.Fatalf("second Write() error = %v", err)
	}

	path := filepath.Join(dir, "rx380_data_2026-03-14.xlsx")
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Readings")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][1] != "voltage_l1" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[3][0] != "2026-03-14 10:00:02" || rows[3][1] != "220.2" {
		t.Errorf("last row = %v", rows[3])
	}
	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != "Readings" {
		t.Errorf("sheets = %v, want [Readings]", sheets)
	}

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("folder contains %v, want only the workbook", names)
	}
}

func TestDailyPath(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		loc  *time.Location
		want string
	}{
		{"utc", time.UTC, filepath.Join("data", "main_data_2026-01-01.csv")},
		{"behind utc", time.FixedZone("UTC-5", -5*60*60), filepath.Join("data", "main_data_2025-12-31.csv")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dailyPath("data", "main", ".csv", ts, tt.loc); got != tt.want {
				t.Errorf("dailyPath() = %q, want %q", got, tt.want)
			}
		})
	}
}
