package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backends selectable with BACKEND.
const (
	BackendFirebase = "firebase"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port        int    `env:"PORT" envDefault:"3000"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"APP_ENV" envDefault:"production"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:8080"`

	// Backend selects the identity/record provider: firebase or memory.
	Backend string `env:"BACKEND" envDefault:"firebase"`

	// HTTP client
	HTTPTimeout         time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	UpstreamCallTimeout time.Duration `env:"UPSTREAM_CALL_TIMEOUT" envDefault:"8s"`

	// Resilience
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"2"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"100ms"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY" envDefault:"50"`

	// Cache
	TokenCacheTTL time.Duration `env:"TOKEN_CACHE_TTL" envDefault:"50m"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Reconciliation
	RedisURL          string        `env:"REDIS_URL"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`
	OrphanMaxAge      time.Duration `env:"ORPHAN_MAX_AGE" envDefault:"24h"`

	// Firebase
	CredentialsFile       string `env:"FIREBASE_CREDENTIALS_FILE" envDefault:"firebase-credentials.json"`
	AuthEmulatorHost      string `env:"FIREBASE_AUTH_EMULATOR_HOST"`
	FirestoreEmulatorHost string `env:"FIRESTORE_EMULATOR_HOST"`

	// Memory backend token signing key
	JWTSecret string `env:"JWT_SECRET" envDefault:"bfa-default-dev-secret-change-me"`
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.Backend != BackendFirebase && c.Backend != BackendMemory {
		return fmt.Errorf("invalid BACKEND %q: want %s or %s", c.Backend, BackendFirebase, BackendMemory)
	}
	if c.HTTPTimeout <= 0 || c.UpstreamCallTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid MAX_RETRIES %d", c.MaxRetries)
	}
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("invalid MAX_CONCURRENCY %d", c.MaxConcurrency)
	}
	if c.TokenCacheTTL <= 0 {
		return fmt.Errorf("invalid TOKEN_CACHE_TTL %s", c.TokenCacheTTL)
	}
	if c.ReconcileInterval <= 0 || c.OrphanMaxAge <= 0 {
		return fmt.Errorf("reconciliation intervals must be positive")
	}
	return nil
}

// IsDevelopment reports whether error details may be returned to clients.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
