// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":5000"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	// Zero keeps /debts/stream connections open.
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"0s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:"host=localhost port=5432 user=postgres password=postgres dbname=debts sslmode=disable"`

	RedisAddr  string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	CacheTTL   time.Duration `envconfig:"CACHE_TTL" default:"10m"`

	EventBuffer        int    `envconfig:"EVENT_BUFFER" default:"100"`
	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	CurrencySymbol     string `envconfig:"CURRENCY_SYMBOL" default:"৳"`
}

// Load reads the given .env files, or ./.env when none are given and it
// exists, then processes the environment. Variables already set win over
// .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing env: %w", err)
	}
	if cfg.EventBuffer <= 0 {
		return nil, fmt.Errorf("EVENT_BUFFER must be positive, got %d", cfg.EventBuffer)
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", cfg.RateLimitPerMinute)
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// NewLogger returns a JSON logger when LOG_FORMAT=json, text otherwise.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
