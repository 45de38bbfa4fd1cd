// Package postgres provides PostgreSQL (and TimescaleDB) connectivity for the
// remote relational sink.
//
// It wraps a jackc/pgx v5 connection pool. Each flush borrows one pooled
// connection, opens a transaction and streams the batch with COPY, so a
// batch either commits whole or not at all.
//
// # Usage
//
//	client, err := postgres.Connect(ctx, cfg.Postgres)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.EnsureReadingsTable(ctx, regs.Names()); err != nil {
//	    return err
//	}
//	n, err := client.CopyRows(ctx, columns, rows)
package postgres
