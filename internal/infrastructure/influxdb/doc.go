// Package influxdb provides InfluxDB v2 connectivity for the RX380 logger.
//
// It wraps the official influxdb-client-go v2 library. Writes go through the
// blocking write API so the caller learns, per flush, whether the batch
// landed; the sink layer decides what to do with a failed batch.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	p := influxdb.NewPoint("rx380", tags, fields, ts)
//	err = client.WritePoints(ctx, p)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
package influxdb
