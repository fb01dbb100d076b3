package app

import (
	"fmt"
	"time"

	"huddle/cmd/internal/capacity"
	"huddle/cmd/internal/queue"
	"huddle/cmd/internal/ratelimit"
	"huddle/cmd/internal/realtime"
	"huddle/cmd/internal/session"
	"huddle/cmd/security/token"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every configuration variable.
const EnvPrefix = "HUDDLE_"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat is "json" (default) or "pretty" for local development.
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// CORS applies to plain HTTP routes. An empty allowlist disables CORS handling.
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	CORSMaxAgeSeconds    int      `env:"CORS_MAX_AGE_SECONDS" envDefault:"600"`

	// DatabaseURL enables the Postgres audit sink. Sessions stay in memory either way.
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"0"`
	AuditBuffer int    `env:"AUDIT_BUFFER" envDefault:"1024"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB" envDefault:"false"`

	// If true, token keys must be configured instead of generated per process.
	RequireStableKeys bool `env:"REQUIRE_STABLE_KEYS" envDefault:"false"`

	// CatalogPath is a YAML candidate catalog served by the static source.
	CatalogPath string `env:"CATALOG_PATH"`
	// PhotoDir backs the signed /photos route. Empty answers 501.
	PhotoDir string `env:"PHOTO_DIR"`

	Session   session.Config   `envPrefix:"SESSION_"`
	Capacity  capacity.Config  `envPrefix:"CAPACITY_"`
	Queue     queue.Config     `envPrefix:"QUEUE_"`
	RateLimit ratelimit.Config `envPrefix:"RATE_"`
	Token     token.Config     `envPrefix:"TOKEN_"`
	WS        realtime.Config  `envPrefix:"WS_"`
}

// LoadConfig loads Config from HUDDLE_* environment variables with defaults.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: EnvPrefix})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
