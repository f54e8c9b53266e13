package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage and delivery backends selectable through the environment.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendLog      = "log"
	BackendWhatsApp = "whatsapp"
)

// Config holds the application configuration
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	DevMode     bool   `env:"DEV_MODE"`

	JWTSecret       string        `env:"JWT_SECRET"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	// StorageBackend selects the user registry: postgres or memory.
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"postgres"`

	// OTPBackend selects where pending codes live: memory, redis or postgres.
	OTPBackend     string `env:"OTP_BACKEND" envDefault:"memory"`
	OTPSalt        string `env:"OTP_SALT"`
	RedisURL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"otp_"`

	NotifyBackend  string        `env:"NOTIFY_BACKEND" envDefault:"log"`
	WhatsAppAPIURL string        `env:"WHATSAPP_API_URL"`
	NotifyTimeout  time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`

	GoogleClientID        string        `env:"GOOGLE_CLIENT_ID"`
	FederatedTimeout      time.Duration `env:"FEDERATED_TIMEOUT" envDefault:"10s"`
	FederatedEmailLinking bool          `env:"FEDERATED_EMAIL_LINKING"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	cfg.OTPBackend = strings.ToLower(strings.TrimSpace(cfg.OTPBackend))
	cfg.NotifyBackend = strings.ToLower(strings.TrimSpace(cfg.NotifyBackend))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StorageBackend)
	}
	switch c.OTPBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("OTP_BACKEND must be %q, %q or %q, got %q", BackendMemory, BackendRedis, BackendPostgres, c.OTPBackend)
	}
	switch c.NotifyBackend {
	case BackendLog, BackendWhatsApp:
	default:
		return fmt.Errorf("NOTIFY_BACKEND must be %q or %q, got %q", BackendLog, BackendWhatsApp, c.NotifyBackend)
	}

	if c.NeedsDatabase() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET environment variable is required (at least 32 bytes)")
	}
	if c.OTPBackend == BackendPostgres && c.OTPSalt == "" {
		return fmt.Errorf("OTP_SALT environment variable is required for the postgres OTP backend")
	}
	if c.OTPBackend == BackendRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL environment variable is required for the redis OTP backend")
	}
	if c.NotifyBackend == BackendWhatsApp && c.WhatsAppAPIURL == "" {
		return fmt.Errorf("WHATSAPP_API_URL environment variable is required for the whatsapp backend")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.NotifyTimeout <= 0 || c.FederatedTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT and FEDERATED_TIMEOUT must be positive")
	}
	return nil
}

// NeedsDatabase reports whether any configured backend requires Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.StorageBackend == BackendPostgres || c.OTPBackend == BackendPostgres
}
