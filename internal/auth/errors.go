package auth

import "errors"

// Definitive access decisions. Never retried by callers.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password;
	// the two cases are indistinguishable on purpose.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrInvalidToken indicates a malformed, unsigned or expired token.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrSessionRevoked covers rotated, explicitly revoked and unknown
	// sessions uniformly so a caller cannot probe which one occurred.
	ErrSessionRevoked = errors.New("auth: session revoked")

	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
)

// ErrStoreUnavailable is an infrastructure failure, not an access decision.
// Callers may retry with backoff.
var ErrStoreUnavailable = errors.New("auth: store unavailable")

// Administrative errors.
var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: resource conflict")
	ErrInvalidInput = errors.New("auth: invalid input")
)
