// Package config provides configuration management for the settlement core.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Game     GameConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string
	DSN    string
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret         string
	TokenExpiry       time.Duration
	SessionTimeout    time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// GameConfig holds settlement-related configuration.
type GameConfig struct {
	DefaultCurrency string
	// LargeWinMultiple flags payouts worth auditing, as a multiple of
	// the round's total bet.
	LargeWinMultiple float64
}

// LoggingConfig holds structured-logging configuration.
type LoggingConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string
	// Development switches to the human-readable console encoder.
	Development bool
}

// Load loads configuration from the environment with defaults. A .env
// file in the working directory is folded in first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SLOTCORE_PORT", "8080"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: getEnv("SLOTCORE_DB_DRIVER", "postgres"),
			DSN:    getEnv("SLOTCORE_DB_DSN", "host=localhost dbname=slotcore sslmode=disable"),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("SLOTCORE_JWT_SECRET", "slotcore-dev-secret-change-in-production"),
			TokenExpiry:       24 * time.Hour,
			SessionTimeout:    30 * time.Minute,
			MaxFailedAttempts: 3,
			LockoutDuration:   30 * time.Minute,
		},
		Game: GameConfig{
			DefaultCurrency:  getEnv("SLOTCORE_CURRENCY", "USD"),
			LargeWinMultiple: getEnvFloat("SLOTCORE_LARGE_WIN_MULTIPLE", 100),
		},
		Logging: LoggingConfig{
			Level:       getEnv("SLOTCORE_LOG_LEVEL", "info"),
			Development: getEnv("SLOTCORE_ENV", "production") == "development",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
