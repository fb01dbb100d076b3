package ratelimit

import "time"

// Config holds per-minute budgets per operation and the penalty budget.
type Config struct {
	CreatePerMinute    int `env:"CREATE_PER_MIN" envDefault:"5"`
	JoinPerMinute      int `env:"JOIN_PER_MIN" envDefault:"10"`
	SwipePerMinute     int `env:"SWIPE_PER_MIN" envDefault:"120"`
	ReconnectPerMinute int `env:"RECONNECT_PER_MIN" envDefault:"10"`
	ExpandPerMinute    int `env:"EXPAND_PER_MIN" envDefault:"6"`

	// PenaltyBudget failed join/reconnect attempts are tolerated per PenaltyWindow.
	PenaltyBudget int           `env:"PENALTY_BUDGET" envDefault:"5"`
	PenaltyWindow time.Duration `env:"PENALTY_WINDOW" envDefault:"15m"`

	// IdleTTL is how long an untouched bucket is kept.
	IdleTTL time.Duration `env:"IDLE_TTL" envDefault:"10m"`
}

// DefaultConfig returns the defaults used when a field is unset or invalid.
func DefaultConfig() Config {
	return Config{
		CreatePerMinute:    5,
		JoinPerMinute:      10,
		SwipePerMinute:     120,
		ReconnectPerMinute: 10,
		ExpandPerMinute:    6,
		PenaltyBudget:      5,
		PenaltyWindow:      15 * time.Minute,
		IdleTTL:            10 * time.Minute,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	clamp := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	clamp(&c.CreatePerMinute, d.CreatePerMinute)
	clamp(&c.JoinPerMinute, d.JoinPerMinute)
	clamp(&c.SwipePerMinute, d.SwipePerMinute)
	clamp(&c.ReconnectPerMinute, d.ReconnectPerMinute)
	clamp(&c.ExpandPerMinute, d.ExpandPerMinute)
	clamp(&c.PenaltyBudget, d.PenaltyBudget)
	if c.PenaltyWindow <= 0 {
		c.PenaltyWindow = d.PenaltyWindow
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = d.IdleTTL
	}
	return c
}
