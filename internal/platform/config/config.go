// Package config centralizes environment variable loading for both
// binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates every parameter the API and the worker need.
type Config struct {
	HTTPAddress string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NotifyChannelPrefix string
	TrendingKey         string
	ViewKeyPrefix       string

	DailyVoteLimit int
	ShowVoteLimit  int

	SubmitMaxAttempts int

	AutoMigrate bool

	WorkerMetricsAddress string
	ReconcileInterval    time.Duration
	TrendingHalfLifeDays float64
	TrendingViewWeight   float64
	TrendingWindowDays   int
}

func Load() (Config, error) {
	// Defaults favor local runs; environment overrides cover Docker/K8s.
	cfg := Config{
		HTTPAddress:          getEnv("HTTP_ADDRESS", ":8080"),
		PostgresHost:         getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:         getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:         getEnv("POSTGRES_USER", "setvote"),
		PostgresPassword:     getEnv("POSTGRES_PASSWORD", "setvote"),
		PostgresDB:           getEnv("POSTGRES_DB", "setvote"),
		PostgresSSLMode:      getEnv("POSTGRES_SSLMODE", "disable"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		NotifyChannelPrefix:  getEnv("REDIS_NOTIFY_PREFIX", "setvote:shows"),
		TrendingKey:          getEnv("REDIS_TRENDING_KEY", "setvote:trending"),
		ViewKeyPrefix:        getEnv("REDIS_VIEW_PREFIX", "setvote:views"),
		DailyVoteLimit:       getEnvAsInt("DAILY_VOTE_LIMIT", 50),
		ShowVoteLimit:        getEnvAsInt("SHOW_VOTE_LIMIT", 10),
		SubmitMaxAttempts:    getEnvAsInt("SUBMIT_MAX_ATTEMPTS", 3),
		AutoMigrate:          getEnvAsBool("DB_AUTO_MIGRATE", true),
		WorkerMetricsAddress: getEnv("WORKER_METRICS_ADDRESS", ":9090"),
		TrendingHalfLifeDays: getEnvAsFloat("TRENDING_HALF_LIFE_DAYS", 3),
		TrendingViewWeight:   getEnvAsFloat("TRENDING_VIEW_WEIGHT", 0.1),
		TrendingWindowDays:   getEnvAsInt("TRENDING_WINDOW_DAYS", 14),
	}

	dbStr := getEnv("REDIS_DB", "0")
	dbInt, err := strconv.Atoi(dbStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = dbInt

	intervalStr := getEnv("RECONCILE_INTERVAL", "1m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid RECONCILE_INTERVAL: %w", err)
	}
	cfg.ReconcileInterval = interval

	if cfg.DailyVoteLimit <= 0 || cfg.ShowVoteLimit <= 0 {
		return Config{}, fmt.Errorf("config: vote limits must be positive (daily=%d show=%d)", cfg.DailyVoteLimit, cfg.ShowVoteLimit)
	}

	return cfg, nil
}

func (c Config) PostgresDSN() string {
	// DSN format shared by GORM and migration tooling.
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvAsInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getEnvAsFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch value {
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return true
	}
}
