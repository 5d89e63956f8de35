package config

import (
	"testing"
	"time"
)

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"DATABASE_URL",
		"APP_SWEEP_INTERVAL",
		"APP_REACTIVATION_WINDOW",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.MetricsNamespace != "taskdeck" {
		t.Fatalf("MetricsNamespace = %q, want taskdeck", cfg.MetricsNamespace)
	}
	if cfg.SweepInterval != time.Hour {
		t.Fatalf("SweepInterval = %v, want 1h", cfg.SweepInterval)
	}
	if cfg.ReactivationWindow != 240*time.Hour {
		t.Fatalf("ReactivationWindow = %v, want 240h", cfg.ReactivationWindow)
	}
	if cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = true, want false default")
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")
	t.Setenv("APP_SWEEP_INTERVAL", "30m")
	t.Setenv("APP_REACTIVATION_WINDOW", "72h")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want :9090", cfg.BindAddr)
	}
	if cfg.SweepInterval != 30*time.Minute {
		t.Fatalf("SweepInterval = %v, want 30m", cfg.SweepInterval)
	}
	if cfg.ReactivationWindow != 72*time.Hour {
		t.Fatalf("ReactivationWindow = %v, want 72h", cfg.ReactivationWindow)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
}

func TestLoadRejectsTightSweepInterval(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_SWEEP_INTERVAL", "5s")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want sweep interval rejection")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want parse failure")
	}
}
