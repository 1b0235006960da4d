package config

import (
	"os"
	"time"
)

// Config carries process-level settings. Values come from the environment so
// deployment stays twelve-factor; defaults suit local development.
type Config struct {
	Addr        string
	DatabaseURL string // empty: in-memory audit store
	RedisAddr   string // empty: in-memory pending cache
	SigningKey  string
	PendingTTL  time.Duration
	LogLevel    string
}

// FromEnv reads configuration from the environment.
func FromEnv() Config {
	return Config{
		Addr:        getEnv("CHRONICLE_ADDR", ":8080"),
		DatabaseURL: os.Getenv("CHRONICLE_DATABASE_URL"),
		RedisAddr:   os.Getenv("CHRONICLE_REDIS_ADDR"),
		SigningKey:  getEnv("CHRONICLE_SIGNING_KEY", "dev-only-signing-key"),
		PendingTTL:  getDuration("CHRONICLE_PENDING_TTL", 2*time.Minute),
		LogLevel:    getEnv("CHRONICLE_LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
