package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/krisso99/roomwave-sync/internal/validator"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration value")
	ErrValidationFailed = errors.New("configuration validation failed")
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	RateLimiting RateLimitConfig
	Sync         SyncConfig
	Export       ExportConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int
	BaseURL     string
	Environment Environment
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// SyncConfig holds sync interval configuration, in minutes.
type SyncConfig struct {
	MinInterval int
	MaxInterval int
}

// ExportConfig holds outbound calendar configuration.
type ExportConfig struct {
	// WindowMonths is how far back and forward exported calendars span.
	WindowMonths int
}

// Load loads configuration from environment variables.
// It attempts to load from .env file first, but continues if not found.
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load() //nolint:errcheck // Intentionally ignore - .env file is optional

	cfg := &Config{}

	// Server configuration
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%w: PORT: %w", ErrInvalidConfig, err)
	}
	cfg.Server.Port = port
	cfg.Server.BaseURL = getEnv("BASE_URL", fmt.Sprintf("http://localhost:%d", port))
	cfg.Server.Environment = Environment(strings.ToLower(getEnv("ENVIRONMENT", "production")))

	// Database configuration
	cfg.Database.Path = getEnv("DATABASE_PATH", "./data/roomwave.db")

	// Rate limiting configuration
	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10.0)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_RPS: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.RPS = rps

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_BURST: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.Burst = burst

	// Sync configuration
	minInterval, err := getEnvInt("MIN_SYNC_INTERVAL", 15)
	if err != nil {
		return nil, fmt.Errorf("%w: MIN_SYNC_INTERVAL: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.MinInterval = minInterval

	maxInterval, err := getEnvInt("MAX_SYNC_INTERVAL", 1440)
	if err != nil {
		return nil, fmt.Errorf("%w: MAX_SYNC_INTERVAL: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.MaxInterval = maxInterval

	if cfg.Sync.MinInterval < 1 || cfg.Sync.MaxInterval < cfg.Sync.MinInterval {
		return nil, fmt.Errorf("%w: sync interval bounds %d-%d", ErrInvalidConfig,
			cfg.Sync.MinInterval, cfg.Sync.MaxInterval)
	}

	// Export configuration
	windowMonths, err := getEnvInt("EXPORT_WINDOW_MONTHS", 12)
	if err != nil {
		return nil, fmt.Errorf("%w: EXPORT_WINDOW_MONTHS: %w", ErrInvalidConfig, err)
	}
	cfg.Export.WindowMonths = windowMonths

	return cfg, nil
}

// Validate checks that configured URLs are well-formed.
func (c *Config) Validate() error {
	v := validator.New()

	if err := v.ValidateURL(c.Server.BaseURL, c.IsProduction()); err != nil {
		return fmt.Errorf("%w: BASE_URL: %w", ErrValidationFailed, err)
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	return parsed, nil
}

// getEnvFloat returns the float value of an environment variable or a default.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float: %w", err)
	}
	return parsed, nil
}
