package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	LogLevel    slog.Level
	RedisURL    string
	DataDir     string

	// ContentRating gates the profanity filter on player-facing reveal text.
	ContentRating string

	// UnlockSoftThreshold is the minimum soft score for an unlock condition
	// to fire once its hard gate passes.
	UnlockSoftThreshold float64
}

func Load() (*Config, error) {
	cfg := &Config{
		Environment:         getEnv("ENVIRONMENT", "development"),
		LogLevel:            parseLogLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379"),
		DataDir:             getEnv("DATA_DIR", "./data"),
		ContentRating:       getEnv("CONTENT_RATING", "PG13"),
		UnlockSoftThreshold: 0.8,
	}

	if raw := os.Getenv("UNLOCK_SOFT_THRESHOLD"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil || t < 0 || t > 1 {
			return nil, fmt.Errorf("invalid UNLOCK_SOFT_THRESHOLD %q: must be a number in [0,1]", raw)
		}
		cfg.UnlockSoftThreshold = t
	}

	return cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
