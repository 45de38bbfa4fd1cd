package auth

import "errors"

// Domain errors.
var (
	ErrTokenInvalid   = errors.New("auth: invalid token")
	ErrMissingScope   = errors.New("auth: token lacks required scope")
	ErrSecretTooShort = errors.New("auth: secret must be at least 32 bytes")
	ErrNoOperator     = errors.New("auth: operator name is required")
)
