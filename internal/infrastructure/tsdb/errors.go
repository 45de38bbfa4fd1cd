package tsdb

import "errors"

// Sentinel errors for time-series database operations.
//
//	if errors.Is(err, tsdb.ErrWriteFailed) {
//	    // Keep the batch for the next flush
//	}
var (
	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("tsdb: not connected")

	// ErrConnectionFailed indicates the initial health check failed.
	ErrConnectionFailed = errors.New("tsdb: connection failed")

	// ErrWriteFailed indicates a write request failed or was rejected.
	ErrWriteFailed = errors.New("tsdb: write failed")

	// ErrDisabled indicates TSDB integration is disabled in config.
	ErrDisabled = errors.New("tsdb: disabled in configuration")
)
