// Package redis keeps a hot copy of the latest meter reading in Redis (or
// Valkey) for dashboards that only need the current values.
//
// Each device has one hash, <prefix>:latest:<device>, holding the reading
// timestamp and one field per channel. The hash is rewritten on every flush
// and expires after the configured TTL so a dead logger does not leave
// stale numbers behind.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg.Redis)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.StoreLatest(ctx, device, fields)
package redis
