package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nerrad567/rx380-logger/internal/meter"
)

// SpreadsheetSink keeps a daily .xlsx workbook per device.
//
// The format cannot be appended in place, so every flush reads the whole
// sheet, adds the new rows and replaces the file through a temp file and
// rename. A crash mid-write leaves the previous workbook intact.
type SpreadsheetSink struct {
	folder string
	device string
	sheet  string
	loc    *time.Location
}

// NewSpreadsheet creates a spreadsheet sink writing sheet under folder.
func NewSpreadsheet(folder, device, sheet string, loc *time.Location) *SpreadsheetSink {
	if loc == nil {
		loc = time.Local
	}
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &SpreadsheetSink{folder: folder, device: device, sheet: sheet, loc: loc}
}

// Name implements Sink.
func (s *SpreadsheetSink) Name() string { return "spreadsheet" }

// Write implements Sink.
func (s *SpreadsheetSink) Write(ctx context.Context, batch []meter.Reading) error {
	channels, err := batchChannels(batch)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.folder, dirPermissions); err != nil {
		return fmt.Errorf("creating spreadsheet folder: %w", err)
	}

	stored := 0
	for _, g := range groupByDay(batch, s.folder, s.device, ".xlsx", s.loc) {
		if err := ctx.Err(); err != nil {
			return partial(stored, err)
		}
		if err := s.rewrite(g, channels); err != nil {
			return partial(stored, err)
		}
		stored += len(g.rows)
	}
	return nil
}

func (s *SpreadsheetSink) rewrite(g dayGroup, channels []string) error {
	f, err := s.open(g.path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck // In-memory workbook

	existing, err := f.GetRows(s.sheet)
	if err != nil {
		return fmt.Errorf("reading %s!%s: %w", g.path, s.sheet, err)
	}

	next := len(existing) + 1
	if len(existing) == 0 {
		header := make([]any, 0, len(channels)+1)
		header = append(header, "timestamp")
		for _, ch := range channels {
			header = append(header, ch)
		}
		if err := setRow(f, s.sheet, next, header); err != nil {
			return err
		}
		next++
	}

	for _, r := range g.rows {
		row := make([]any, 0, r.Len()+1)
		row = append(row, r.Timestamp().In(s.loc).Format(rowTimeLayout))
		for _, v := range r.Values() {
			row = append(row, v)
		}
		if err := setRow(f, s.sheet, next, row); err != nil {
			return err
		}
		next++
	}

	return replaceFile(g.path, f)
}

// open loads path, or starts a new workbook whose only sheet is s.sheet.
func (s *SpreadsheetSink) open(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path)
	switch {
	case err == nil:
		if idx, _ := f.GetSheetIndex(s.sheet); idx == -1 {
			if _, err := f.NewSheet(s.sheet); err != nil {
				f.Close() //nolint:errcheck // Error path
				return nil, fmt.Errorf("adding sheet %s: %w", s.sheet, err)
			}
		}
		return f, nil
	case errors.Is(err, os.ErrNotExist):
		f = excelize.NewFile()
		if def := f.GetSheetName(0); def != s.sheet {
			if err := f.SetSheetName(def, s.sheet); err != nil {
				f.Close() //nolint:errcheck // Error path
				return nil, fmt.Errorf("naming sheet %s: %w", s.sheet, err)
			}
		}
		return f, nil
	default:
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing row %d: %w", row, err)
	}
	return nil
}

// replaceFile writes f to a temp file next to path and renames it over path.
func replaceFile(path string, f *excelize.File) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // Gone after a successful rename

	if err := f.Write(tmp); err != nil {
		tmp.Close() //nolint:errcheck // Error path
		return fmt.Errorf("encoding workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // Error path
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
