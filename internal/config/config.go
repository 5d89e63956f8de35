package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the task workflow service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DatabaseURL string

	SweepInterval      time.Duration
	ReactivationWindow time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "taskdeck"),
		AllowAnyOrigin:   false,
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		ShutdownTimeout:  15 * time.Second,
		// Paused tasks are re-checked hourly; anything due within the
		// lookahead window goes back to pending.
		SweepInterval:      time.Hour,
		ReactivationWindow: 240 * time.Hour,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepInterval, err = durationFromEnv("APP_SWEEP_INTERVAL", cfg.SweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.ReactivationWindow, err = durationFromEnv("APP_REACTIVATION_WINDOW", cfg.ReactivationWindow)
	if err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval < time.Minute {
		return Config{}, fmt.Errorf("APP_SWEEP_INTERVAL must be at least 1m")
	}
	if cfg.ReactivationWindow <= 0 {
		return Config{}, fmt.Errorf("APP_REACTIVATION_WINDOW must be positive")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
