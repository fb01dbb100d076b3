package token

import "time"

// MinResourceSecretBytes is the minimum accepted size of a configured resource secret.
const MinResourceSecretBytes = 32

// Config controls token issuance.
type Config struct {
	// Issuer is set as the "iss" claim and enforced on verification.
	Issuer string `env:"ISSUER" envDefault:"huddle"`

	// TTL is the lifetime of session tokens. It should outlive SessionTTL so a
	// participant can reconnect for as long as the session exists.
	TTL time.Duration `env:"TTL" envDefault:"6h"`

	// ClockSkew shortens the accepted validity window on verification.
	ClockSkew time.Duration `env:"CLOCK_SKEW" envDefault:"5s"`

	// SecretKeyHex is the hex Ed25519 secret key. Empty means "generate one".
	SecretKeyHex string `env:"SECRET_KEY_HEX"`

	// ResourceSecret is the HKDF input for resource tokens. Empty means "generate one".
	ResourceSecret string `env:"RESOURCE_SECRET"`
}

// DefaultConfig returns defaults suitable for development.
func DefaultConfig() Config {
	return Config{
		Issuer:    "huddle",
		TTL:       6 * time.Hour,
		ClockSkew: 5 * time.Second,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Issuer == "" {
		c.Issuer = d.Issuer
	}
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.ClockSkew < 0 {
		c.ClockSkew = 0
	}
	return c
}
