package postgres

import "errors"

// Sentinel errors for PostgreSQL operations.
var (
	// ErrDisabled indicates PostgreSQL is disabled in config.
	ErrDisabled = errors.New("postgres: disabled in configuration")

	// ErrConnectionFailed indicates the pool could not be created or pinged.
	ErrConnectionFailed = errors.New("postgres: connection failed")

	// ErrWriteFailed indicates a batch was rolled back.
	ErrWriteFailed = errors.New("postgres: write failed")

	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("postgres: not connected")

	// ErrInvalidIdentifier indicates an unusable table or column name.
	ErrInvalidIdentifier = errors.New("postgres: invalid identifier")
)
