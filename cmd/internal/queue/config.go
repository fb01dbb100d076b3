package queue

import "time"

// Config bounds progressive expansion.
type Config struct {
	// InitialRadius is used when a create request does not carry one (meters).
	InitialRadius float64 `env:"INITIAL_RADIUS" envDefault:"1500"`

	// RadiusStep is added to the radius on each expansion (meters).
	RadiusStep float64 `env:"RADIUS_STEP" envDefault:"1000"`

	// MaxRadius is the ceiling radius (meters).
	MaxRadius float64 `env:"MAX_RADIUS" envDefault:"10000"`

	// MaxCandidates bounds the candidates a session can ever hold.
	MaxCandidates int `env:"MAX_CANDIDATES" envDefault:"60"`

	// FetchTimeout bounds a single candidate-source call.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"5s"`
}

// DefaultConfig returns the defaults used when a field is unset or invalid.
func DefaultConfig() Config {
	return Config{
		InitialRadius: 1500,
		RadiusStep:    1000,
		MaxRadius:     10000,
		MaxCandidates: 60,
		FetchTimeout:  5 * time.Second,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.InitialRadius <= 0 {
		c.InitialRadius = d.InitialRadius
	}
	if c.RadiusStep <= 0 {
		c.RadiusStep = d.RadiusStep
	}
	if c.MaxRadius <= 0 {
		c.MaxRadius = d.MaxRadius
	}
	if c.MaxRadius < c.InitialRadius {
		c.MaxRadius = c.InitialRadius
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	return c
}
