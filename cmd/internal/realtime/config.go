package realtime

import "time"

// Config controls the websocket gateway. Fields are read from HUDDLE_WS_*.
type Config struct {
	// DevInsecure disables websocket.Accept's own origin verification. Dev only.
	DevInsecure bool `env:"DEV_INSECURE" envDefault:"false"`

	OriginRequired bool     `env:"ORIGIN_REQUIRED" envDefault:"true"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost,http://127.0.0.1"`

	// TrustProxy keys per-origin budgets on the first X-Forwarded-For hop
	// instead of the socket peer address.
	TrustProxy bool `env:"TRUST_PROXY" envDefault:"false"`

	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	ReadIdleTimeout time.Duration `env:"READ_IDLE_TIMEOUT" envDefault:"2m"`
	SendQueue       int           `env:"SEND_QUEUE" envDefault:"256"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"5s"`

	FloodEvents int           `env:"FLOOD_EVENTS" envDefault:"120"`
	FloodWindow time.Duration `env:"FLOOD_WINDOW" envDefault:"10s"`

	JoinDelayMin time.Duration `env:"JOIN_DELAY_MIN" envDefault:"150ms"`
	JoinDelayMax time.Duration `env:"JOIN_DELAY_MAX" envDefault:"400ms"`

	// PhotoPath is the route serving signed candidate photos.
	PhotoPath string `env:"PHOTO_PATH" envDefault:"/photos"`
}

// DefaultConfig returns secure defaults (origin required, localhost only).
func DefaultConfig() Config {
	return Config{
		OriginRequired:    true,
		AllowedOrigins:    []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:      5 * time.Second,
		ReadIdleTimeout:   2 * time.Minute,
		SendQueue:         256,
		HeartbeatInterval: defaultHeartbeatInterval,
		HeartbeatTimeout:  defaultHeartbeatTimeout,
		FloodEvents:       defaultFloodEvents,
		FloodWindow:       defaultFloodWindow,
		JoinDelayMin:      defaultJoinDelayMin,
		JoinDelayMax:      defaultJoinDelayMax,
		PhotoPath:         "/photos",
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = d.ReadIdleTimeout
	}
	if c.SendQueue < minSendQueueSize {
		c.SendQueue = minSendQueueSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.FloodEvents <= 0 {
		c.FloodEvents = d.FloodEvents
	}
	if c.FloodWindow <= 0 {
		c.FloodWindow = d.FloodWindow
	}
	if c.JoinDelayMax <= 0 {
		c.JoinDelayMin, c.JoinDelayMax = d.JoinDelayMin, d.JoinDelayMax
	}
	if c.JoinDelayMin < 0 {
		c.JoinDelayMin = 0
	}
	if c.JoinDelayMax < c.JoinDelayMin {
		c.JoinDelayMax = c.JoinDelayMin
	}
	if c.PhotoPath == "" {
		c.PhotoPath = d.PhotoPath
	}
	return c
}
