// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds every tunable the service reads at startup.
type Config struct {
	Addr     string `env:"AUTHDESK_ADDR" envDefault:":8080"`
	LogLevel string `env:"AUTHDESK_LOG_LEVEL" envDefault:"info"`

	// PGDSN is optional; without it the service runs on the in-memory
	// directory (useful for local development and tests).
	PGDSN string `env:"AUTHDESK_PG_DSN"`

	TokenSecret   string        `env:"AUTHDESK_TOKEN_SECRET"`
	TokenIssuer   string        `env:"AUTHDESK_TOKEN_ISSUER" envDefault:"authdesk"`
	TokenTTL      time.Duration `env:"AUTHDESK_TOKEN_TTL" envDefault:"1h"`
	SweepInterval time.Duration `env:"AUTHDESK_SWEEP_INTERVAL" envDefault:"1h"`

	BcryptCost int `env:"AUTHDESK_BCRYPT_COST" envDefault:"10"`

	RateLimitPerSecond int `env:"AUTHDESK_RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst     int `env:"AUTHDESK_RATE_LIMIT_BURST" envDefault:"100"`

	MaxBodyBytes int64 `env:"AUTHDESK_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TokenSecret == "" {
		return errors.New("AUTHDESK_TOKEN_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return errors.New("AUTHDESK_TOKEN_TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("AUTHDESK_SWEEP_INTERVAL must be positive")
	}
	return nil
}
