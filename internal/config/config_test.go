package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might affect defaults
	for _, key := range []string{"MIRROR_URL", "SIGNER_URL", "DATABASE_URL", "HTTP_PORT", "MIRROR_RETRY_MAX", "MIRROR_RATE_LIMIT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := Load()

	if cfg.MirrorURL != "https://mirror.hashyield.io" {
		t.Errorf("MirrorURL = %q, want default", cfg.MirrorURL)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.MirrorRetryMax != 5 {
		t.Errorf("MirrorRetryMax = %d, want 5", cfg.MirrorRetryMax)
	}
	if cfg.MirrorRateLimit != 25 {
		t.Errorf("MirrorRateLimit = %v, want 25", cfg.MirrorRateLimit)
	}
	if cfg.ResolveDebounce != 300*time.Millisecond {
		t.Errorf("ResolveDebounce = %v, want 300ms", cfg.ResolveDebounce)
	}
	if cfg.ConfirmTimeout != 45*time.Second {
		t.Errorf("ConfirmTimeout = %v, want 45s", cfg.ConfirmTimeout)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MIRROR_URL", "https://mirror.example.com")
	t.Setenv("DATABASE_URL", "postgres://localhost/testdb")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("MIRROR_RETRY_MAX", "10")
	t.Setenv("MIRROR_RETRY_BASE_DELAY", "5s")
	t.Setenv("MIRROR_RATE_LIMIT", "7.5")

	cfg := Load()

	if cfg.MirrorURL != "https://mirror.example.com" {
		t.Errorf("MirrorURL = %q, want override", cfg.MirrorURL)
	}
	if cfg.DatabaseURL != "postgres://localhost/testdb" {
		t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
	}
	if cfg.HTTPPort != "9090" {
		t.Errorf("HTTPPort = %q, want 9090", cfg.HTTPPort)
	}
	if cfg.MirrorRetryMax != 10 {
		t.Errorf("MirrorRetryMax = %d, want 10", cfg.MirrorRetryMax)
	}
	if cfg.MirrorRetryBaseDelay != 5*time.Second {
		t.Errorf("MirrorRetryBaseDelay = %v, want 5s", cfg.MirrorRetryBaseDelay)
	}
	if cfg.MirrorRateLimit != 7.5 {
		t.Errorf("MirrorRateLimit = %v, want 7.5", cfg.MirrorRateLimit)
	}
}

func TestLoadInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("MIRROR_RETRY_MAX", "not-a-number")
	t.Setenv("MIRROR_RETRY_BASE_DELAY", "invalid-duration")
	t.Setenv("MIRROR_RATE_LIMIT", "fast")

	cfg := Load()

	if cfg.MirrorRetryMax != 5 {
		t.Errorf("MirrorRetryMax = %d, want default 5 on invalid input", cfg.MirrorRetryMax)
	}
	if cfg.MirrorRetryBaseDelay != 2*time.Second {
		t.Errorf("MirrorRetryBaseDelay = %v, want default 2s on invalid input", cfg.MirrorRetryBaseDelay)
	}
	if cfg.MirrorRateLimit != 25 {
		t.Errorf("MirrorRateLimit = %v, want default 25 on invalid input", cfg.MirrorRateLimit)
	}
}
