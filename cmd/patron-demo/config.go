package main

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Username string // Demo patron account name (default: fred)

	StoreDriver     string // Credential store driver (memory, file, sqlite, redis) (default: memory)
	StoreFile       string // file driver: encrypted credential file path (default: ./patron-creds.enc)
	StorePassphrase string // file driver: passphrase for at-rest encryption
	SQLiteFile      string // sqlite driver: database file path (default: ./patron-creds.db)
	RedisAddr       string // redis driver: host:port (default: localhost:6379)

	Port                int           // Issuer HTTP port (default: 8088, 0 picks a free port)
	AccessTTL           time.Duration // Access token lifetime; short so the demo hits a renewal (default: 2s)
	RefreshTTL          time.Duration // Refresh session lifetime (default: 1h)
	Rounds              int           // Authenticated calls to make (default: 3)
	SweepInterval       time.Duration // Session sweeper interval (default: 1m)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 5s)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: text)
}

func LoadConfig() Config {
	return Config{
		Username: getEnvOrDefault("PATRON_USERNAME", "fred"),

		StoreDriver:     getEnvOrDefault("PATRON_STORE_DRIVER", "memory"),
		StoreFile:       getEnvOrDefault("PATRON_STORE_FILE", "patron-creds.enc"),
		StorePassphrase: getEnvOrDefault("PATRON_STORE_PASSPHRASE", "patron-demo"),
		SQLiteFile:      getEnvOrDefault("PATRON_SQLITE_FILE", "patron-creds.db"),
		RedisAddr:       getEnvOrDefault("PATRON_REDIS_ADDR", "localhost:6379"),

		Port:                getEnvIntOrDefault("PORT", 8088),
		AccessTTL:           getEnvDurationOrDefault("PATRON_ACCESS_TTL", 2*time.Second),
		RefreshTTL:          getEnvDurationOrDefault("PATRON_REFRESH_TTL", time.Hour),
		Rounds:              getEnvIntOrDefault("PATRON_ROUNDS", 3),
		SweepInterval:       getEnvDurationOrDefault("PATRON_SWEEP_INTERVAL", time.Minute),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 5*time.Second),

		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
