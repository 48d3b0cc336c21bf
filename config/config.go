// Package config reads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerAddr        string
	DatabaseURL       string
	RedisAddr         string
	WebhookRateLimit  int
	WebhookRateWindow time.Duration
}

// Load reads configuration from environment variables, applying
// defaults for everything except DATABASE_URL and REDIS_ADDR, whose
// absence selects degraded in-memory modes.
func Load() Config {
	return Config{
		ServerAddr:        getEnv("SERVER_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		WebhookRateLimit:  getEnvInt("WEBHOOK_RATE_LIMIT", 60),
		WebhookRateWindow: getEnvDuration("WEBHOOK_RATE_WINDOW", time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
