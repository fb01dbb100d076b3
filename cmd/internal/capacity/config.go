package capacity

import "time"

// Config bounds the number and lifetime of sessions.
type Config struct {
	// MaxSessions is the global ceiling.
	MaxSessions int `env:"MAX_SESSIONS" envDefault:"1000"`

	// EvictFraction of MaxSessions is evicted (least recently touched first) when the ceiling is met.
	EvictFraction float64 `env:"EVICT_FRACTION" envDefault:"0.1"`

	// IdleTimeout removes sessions with nobody connected after this long without activity.
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"15m"`

	// SweepInterval is the period of the background sweep.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
}

// DefaultConfig returns the defaults used when a field is unset or invalid.
func DefaultConfig() Config {
	return Config{
		MaxSessions:   1000,
		EvictFraction: 0.1,
		IdleTimeout:   15 * time.Minute,
		SweepInterval: time.Minute,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxSessions <= 0 {
		c.MaxSessions = d.MaxSessions
	}
	if c.EvictFraction <= 0 || c.EvictFraction > 1 {
		c.EvictFraction = d.EvictFraction
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}
