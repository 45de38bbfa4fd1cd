// Package database provides the local SQLite store for meter readings.
//
// This package manages:
//   - The connection, with WAL mode and a busy timeout
//   - Schema migrations embedded in the binary (see the migrations package)
//   - The readings table, whose channel columns follow the register map
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//	if err := db.EnsureReadingsTable(ctx, cfg.Database.Table, regs.Names()); err != nil {
//	    return err
//	}
//
// Migrations are additive only. A custom register map never drops columns;
// channels missing from the table are added as nullable REAL columns.
package database
