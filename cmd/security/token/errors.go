package token

import "errors"

// Public, stable errors for callers.
var (
	// ErrInvalidToken covers every verification failure (bad signature, expiry,
	// malformed claims, wrong session). Callers cannot tell them apart.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid token config")

	// ErrSecretTooShort is returned when a configured resource secret is below the minimum size.
	ErrSecretTooShort = errors.New("resource secret too short")
)
