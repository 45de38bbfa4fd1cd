package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidIdentifier is returned for table or column names that cannot be
// used unquoted in SQL.
var ErrInvalidIdentifier = errors.New("database: invalid identifier")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to interpolate into SQL.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// EnsureReadingsTable makes table ready to receive rows with the given
// channel columns.
//
// The table is created if missing with device_id, timestamp and one REAL
// column per channel. An existing table only ever gains columns: channels
// absent from it are added with ALTER TABLE, nothing is dropped or retyped.
//
// Parameters:
//   - ctx: Context for cancellation
//   - table: Table name (letters, digits, underscore)
//   - channels: Channel names from the register map
//
// Returns:
//   - []string: Columns that were added to an existing table
//   - error: ErrInvalidIdentifier or a database error
func (db *DB) EnsureReadingsTable(ctx context.Context, table string, channels []string) ([]string, error) {
	if !ValidIdentifier(table) {
		return nil, fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table)
	}
	for _, ch := range channels {
		if !ValidIdentifier(ch) {
			return nil, fmt.Errorf("%w: column %q", ErrInvalidIdentifier, ch)
		}
	}

	existing, err := db.tableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	if len(existing) == 0 {
		if _, err := db.ExecContext(ctx, createReadingsSQL(table, channels)); err != nil {
			return nil, fmt.Errorf("creating table %s: %w", table, err)
		}
		return nil, nil
	}

	var added []string
	for _, ch := range channels {
		if existing[strings.ToLower(ch)] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s REAL", table, ch)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return added, fmt.Errorf("adding column %s.%s: %w", table, ch, err)
		}
		added = append(added, ch)
	}
	return added, nil
}

// tableColumns returns the lower-cased column names of table, or an empty
// set when the table does not exist.
func (db *DB) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("inspecting table %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scanning table info: %w", err)
		}
		cols[strings.ToLower(name)] = true
	}
	return cols, rows.Err()
}

func createReadingsSQL(table string, channels []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	b.WriteString("\tid INTEGER PRIMARY KEY AUTOINCREMENT,\n")
	b.WriteString("\tdevice_id TEXT NOT NULL,\n")
	b.WriteString("\ttimestamp TEXT NOT NULL")
	for _, ch := range channels {
		fmt.Fprintf(&b, ",\n\t%s REAL", ch)
	}
	b.WriteString("\n)")
	return b.String()
}
