package session

import "time"

// Config bounds session lifetime and membership.
type Config struct {
	// TTL is the hard lifetime of a session from creation.
	TTL time.Duration `env:"TTL" envDefault:"3h"`

	// MaxPerOrigin is the per-origin ceiling on concurrent sessions. 0 disables it.
	MaxPerOrigin int `env:"MAX_PER_ORIGIN" envDefault:"3"`

	// MaxParticipants bounds membership of a single session.
	MaxParticipants int `env:"MAX_PARTICIPANTS" envDefault:"12"`

	// HostGrace is how long a session survives its host being disconnected.
	HostGrace time.Duration `env:"HOST_GRACE" envDefault:"60s"`
}

// DefaultConfig returns the defaults used when a field is unset or invalid.
func DefaultConfig() Config {
	return Config{
		TTL:             3 * time.Hour,
		MaxPerOrigin:    3,
		MaxParticipants: 12,
		HostGrace:       60 * time.Second,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.MaxPerOrigin < 0 {
		c.MaxPerOrigin = 0
	}
	if c.MaxParticipants < 2 {
		c.MaxParticipants = d.MaxParticipants
	}
	if c.HostGrace <= 0 {
		c.HostGrace = d.HostGrace
	}
	return c
}
