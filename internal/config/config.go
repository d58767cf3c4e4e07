package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	StoreDriver    string
	MongoURI       string
	MongoDatabase  string
	DatabaseURL    string
	FirebaseCreds  string
	PushEnabled    bool
	SweepInterval  time.Duration
	LogLevel       string
	PrometheusPort string
	Port           string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		StoreDriver:    getEnvOrDefault("STORE_DRIVER", "mongo"),
		MongoDatabase:  getEnvOrDefault("MONGODB_DATABASE", "shareplans"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		PrometheusPort: getEnvOrDefault("PROMETHEUS_PORT", "9090"),
		Port:           getEnvOrDefault("PORT", "8080"),
		PushEnabled:    os.Getenv("PUSH_DISABLED") != "true",
	}

	interval, err := time.ParseDuration(getEnvOrDefault("SWEEP_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	cfg.SweepInterval = interval

	// Required environment variables depend on the chosen store driver.
	switch cfg.StoreDriver {
	case "mongo":
		if cfg.MongoURI = os.Getenv("MONGODB_URI"); cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGODB_URI environment variable is required")
		}
	case "postgres":
		if cfg.DatabaseURL = os.Getenv("DATABASE_URL"); cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want mongo or postgres)", cfg.StoreDriver)
	}

	if cfg.FirebaseCreds = os.Getenv("FIREBASE_SERVICE_ACCOUNT"); cfg.FirebaseCreds == "" {
		return nil, fmt.Errorf("FIREBASE_SERVICE_ACCOUNT environment variable is required")
	}

	return cfg, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
