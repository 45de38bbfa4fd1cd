package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nerrad567/rx380-logger/internal/meter"
)

// SQLSink inserts readings into a local relational table through
// database/sql, one transaction per flush.
//
// The table must already have device_id, timestamp and one column per
// channel; database.EnsureReadingsTable prepares it at startup.
type SQLSink struct {
	name  string
	db    *sql.DB
	table string
}

// NewSQLite creates the sqlite sink over db.
func NewSQLite(db *sql.DB, table string) *SQLSink {
	return &SQLSink{name: "sqlite", db: db, table: table}
}

// Name implements Sink.
func (s *SQLSink) Name() string { return s.name }

// Write prepares one insert and executes it per reading. Any error rolls
// the whole batch back.
func (s *SQLSink) Write(ctx context.Context, batch []meter.Reading) error {
	channels, err := batchChannels(batch)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	stmt, err := tx.PrepareContext(ctx, insertSQL(s.table, channels))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(channels)+2)
	for _, r := range batch {
		args[0] = r.Device()
		args[1] = r.Timestamp().Format(rowTimeLayout)
		for i, v := range r.Values() {
			args[i+2] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting reading at %s: %w", args[1], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

func insertSQL(table string, channels []string) string {
	cols := append([]string{"device_id", "timestamp"}, channels...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), marks)
}
