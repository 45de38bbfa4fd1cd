// Package migrations embeds the SQLite schema into the binary so the logger
// can create its tables without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/rx380-logger/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
