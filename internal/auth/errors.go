package auth

import "errors"

// Sentinel errors for token verification and the request gate.
var (
	// Token codec failures.
	ErrMalformed        = errors.New("auth: token malformed")
	ErrSignatureInvalid = errors.New("auth: token signature invalid")
	ErrExpired          = errors.New("auth: token expired")

	// Gate failures. ErrInvalidCredential wraps one of the codec failures above.
	ErrMissingCredential = errors.New("auth: missing credential")
	ErrInvalidCredential = errors.New("auth: invalid credential")
)
