package sink

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
)

// File and directory permissions for daily output files.
const (
	dirPermissions  = 0750
	filePermissions = 0640
)

// dailyPath returns <folder>/<device>_data_<YYYY-MM-DD><ext> for the local
// date of t.
func dailyPath(folder, device, ext string, t time.Time, loc *time.Location) string {
	return filepath.Join(folder, fmt.Sprintf("%s_data_%s%s", device, t.In(loc).Format(time.DateOnly), ext))
}

// dayGroup is a run of readings that share an output file.
type dayGroup struct {
	path string
	rows []meter.Reading
}

// groupByDay splits batch by local date, preserving order. A batch that
// spans midnight produces two groups.
func groupByDay(batch []meter.Reading, folder, device, ext string, loc *time.Location) []dayGroup {
	var groups []dayGroup
	for _, r := range batch {
		path := dailyPath(folder, device, ext, r.Timestamp(), loc)
		if n := len(groups); n > 0 && groups[n-1].path == path {
			groups[n-1].rows = append(groups[n-1].rows, r)
			continue
		}
		groups = append(groups, dayGroup{path: path, rows: []meter.Reading{r}})
	}
	return groups
}

// partial wraps err in a *PartialWriteError when earlier day files were
// already written.
func partial(stored int, err error) error {
	if stored == 0 {
		return err
	}
	return &PartialWriteError{Rows: stored, Err: err}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
