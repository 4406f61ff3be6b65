// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Escrow settings
	MinAmount        int64         // Minimum transaction amount in VND
	MaxAmount        int64         // Maximum transaction amount in VND
	MaxDurationHours int           // Upper bound for escrow duration (one week)
	ExpirySweep      time.Duration // Interval for the expired-transaction sweep

	// Security
	AdminSecret  string // Admin API secret (dispute resolution, top-up recording)
	RateLimitRPM int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultMinAmount        = 10_000         // 10k VND
	DefaultMaxAmount        = 500_000_000    // 500M VND
	DefaultMaxDurationHours = 168            // 7 days
	DefaultExpirySweep      = 1 * time.Minute
	DefaultRateLimit        = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		MinAmount:        getEnvInt64("MIN_AMOUNT", DefaultMinAmount),
		MaxAmount:        getEnvInt64("MAX_AMOUNT", DefaultMaxAmount),
		MaxDurationHours: int(getEnvInt64("MAX_DURATION_HOURS", DefaultMaxDurationHours)),
		ExpirySweep:      getEnvDuration("EXPIRY_SWEEP_INTERVAL", DefaultExpirySweep),
		AdminSecret:      os.Getenv("ADMIN_SECRET"),
		RateLimitRPM:     int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.MinAmount <= 0 {
		return fmt.Errorf("MIN_AMOUNT must be positive")
	}
	if c.MaxAmount <= c.MinAmount {
		return fmt.Errorf("MAX_AMOUNT must be greater than MIN_AMOUNT")
	}
	if c.MaxDurationHours < 1 {
		return fmt.Errorf("MAX_DURATION_HOURS must be at least 1")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
