package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	MirrorURL            string
	SignerURL            string
	DatabaseURL          string
	HTTPPort             string
	ReportDir            string
	SheetsSpreadsheetID  string
	SheetsCredentials    string
	MirrorRetryMax       int
	MirrorRetryBaseDelay time.Duration
	MirrorRateLimit      float64
	SignerTimeout        time.Duration
	ResolveDebounce      time.Duration
	ConfirmInterval      time.Duration
	ConfirmTimeout       time.Duration
	CacheTTL             time.Duration
	RateStaleThreshold   time.Duration
	AprWorkerInterval    time.Duration
	ReportWorkerInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		MirrorURL:            envOrDefault("MIRROR_URL", "https://mirror.hashyield.io"),
		SignerURL:            envOrDefaultWarn("SIGNER_URL", ""),
		DatabaseURL:          envOrDefaultWarn("DATABASE_URL", ""),
		HTTPPort:             envOrDefault("HTTP_PORT", "8080"),
		ReportDir:            envOrDefault("REPORT_DIR", "reports"),
		SheetsSpreadsheetID:  envOrDefault("SHEETS_SPREADSHEET_ID", ""),
		SheetsCredentials:    envOrDefault("SHEETS_CREDENTIALS_JSON", ""),
		MirrorRetryMax:       envOrDefaultInt("MIRROR_RETRY_MAX", 5),
		MirrorRetryBaseDelay: envOrDefaultDuration("MIRROR_RETRY_BASE_DELAY", 2*time.Second),
		MirrorRateLimit:      envOrDefaultFloat("MIRROR_RATE_LIMIT", 25),
		SignerTimeout:        envOrDefaultDuration("SIGNER_TIMEOUT", 60*time.Second),
		ResolveDebounce:      envOrDefaultDuration("RESOLVE_DEBOUNCE", 300*time.Millisecond),
		ConfirmInterval:      envOrDefaultDuration("CONFIRM_INTERVAL", 2*time.Second),
		ConfirmTimeout:       envOrDefaultDuration("CONFIRM_TIMEOUT", 45*time.Second),
		CacheTTL:             envOrDefaultDuration("POSITION_CACHE_TTL", 30*time.Second),
		RateStaleThreshold:   envOrDefaultDuration("RATE_STALE_THRESHOLD", 6*time.Hour),
		AprWorkerInterval:    envOrDefaultDuration("APR_WORKER_INTERVAL", 10*time.Minute),
		ReportWorkerInterval: envOrDefaultDuration("REPORT_WORKER_INTERVAL", 24*time.Hour),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
