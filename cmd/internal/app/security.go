package app

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"huddle/cmd/security/token"
)

var (
	ErrSigningKeyMissing     = errors.New("security policy: token signing key is missing")
	ErrSigningKeyInvalid     = errors.New("security policy: token signing key is not valid hex")
	ErrResourceSecretMissing = errors.New("security policy: resource secret is missing")
	ErrResourceSecretShort   = errors.New("security policy: resource secret is too short")
)

// ValidateSecurityConfig enforces key policy at startup.
// With REQUIRE_STABLE_KEYS unset, missing keys are generated per process.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireStableKeys {
		return nil
	}

	key := strings.TrimSpace(cfg.Token.SecretKeyHex)
	if key == "" {
		return fmt.Errorf("%w: set %sTOKEN_SECRET_KEY_HEX", ErrSigningKeyMissing, EnvPrefix)
	}
	if _, err := hex.DecodeString(key); err != nil {
		return fmt.Errorf("%w: %w", ErrSigningKeyInvalid, err)
	}

	secret := cfg.Token.ResourceSecret
	if secret == "" {
		return fmt.Errorf("%w: set %sTOKEN_RESOURCE_SECRET", ErrResourceSecretMissing, EnvPrefix)
	}
	// Measured in bytes: the secret is used as raw HKDF input.
	if len(secret) < token.MinResourceSecretBytes {
		return fmt.Errorf("%w (min %d bytes)", ErrResourceSecretShort, token.MinResourceSecretBytes)
	}
	return nil
}
