package redis

import "errors"

// Sentinel errors for Redis operations.
var (
	// ErrDisabled indicates Redis is disabled in config.
	ErrDisabled = errors.New("redis: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("redis: connection failed")

	// ErrWriteFailed indicates the MULTI/EXEC block did not complete.
	ErrWriteFailed = errors.New("redis: write failed")

	// ErrNotFound indicates no latest reading is cached for the device.
	ErrNotFound = errors.New("redis: no cached reading")
)
