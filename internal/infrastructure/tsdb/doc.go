// Package tsdb writes meter readings to VictoriaMetrics.
//
// Points are encoded as InfluxDB line protocol and POSTed to /write, one
// request per flush. Connectivity is checked with GET /health. The package
// uses only net/http.
//
// # Usage
//
//	client, err := tsdb.Connect(ctx, cfg.TSDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	line := tsdb.FormatLine("rx380", tags, fields, ts)
//	err = client.WriteLines(ctx, []string{line})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package tsdb
