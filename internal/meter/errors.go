package meter

import (
	"errors"
	"fmt"
)

// Sentinel errors for meter operations.
var (
	// ErrPoolClosed is returned by Acquire after the pool has been closed.
	ErrPoolClosed = errors.New("meter: connection pool closed")

	// ErrInvalidRegisterMap is returned when a register map fails validation.
	ErrInvalidRegisterMap = errors.New("meter: invalid register map")

	// ErrShortResponse is returned when the meter answers with fewer words than requested.
	ErrShortResponse = errors.New("meter: short register response")

	// ErrConnectFailed is returned when a transport cannot be opened.
	ErrConnectFailed = errors.New("meter: transport connect failed")

	// ErrUnknownChannel is returned by Reading.Value for a name outside the map.
	ErrUnknownChannel = errors.New("meter: unknown channel")
)

// TransportError reports a failed register request.
type TransportError struct {
	Address uint16
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("meter: reading register %d: %v", e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PartialReadError reports the channel that failed a ReadReading call.
// No Reading is produced when this error is returned.
type PartialReadError struct {
	Channel string
	Cause   error
}

func (e *PartialReadError) Error() string {
	return fmt.Sprintf("meter: channel %s: %v", e.Channel, e.Cause)
}

func (e *PartialReadError) Unwrap() error {
	return e.Cause
}
