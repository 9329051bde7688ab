package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization

	"github.com/joho/godotenv"

	"benefit_cycle_engine/internal/domain/cycle"
)

// MissingAnchorPolicy decides what the reconciler does with anniversary
// benefits on cards without an opening date.
type MissingAnchorPolicy string

const (
	MissingAnchorFallback MissingAnchorPolicy = "fallback" // January 1st of the reference year, logged as degraded
	MissingAnchorDefer    MissingAnchorPolicy = "defer"    // skip until an anchor is supplied
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseDriver         string // "postgres" or "sqlite3"
	DatabaseURL            string
	LogLevel               string
	Environment            string
	CronSpecReconcile      string
	ReconcileWorkers       int
	MissingAnchorPolicy    MissingAnchorPolicy
	ValidationMode         cycle.ValidationMode
	RepairBatchSize        int
	RepairBatchesPerSecond float64 // 0 disables throttling
	MetricsAddr            string  // empty disables the metrics endpoint
}

// DatabaseOverrides replaces the database settings from the environment when
// set, e.g. from command-line flags.
type DatabaseOverrides struct {
	Driver string
	URL    string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	return LoadWithOverrides(DatabaseOverrides{})
}

// LoadWithOverrides is Load with the non-empty fields of db taking precedence
// over DATABASE_DRIVER and DATABASE_URL.
func LoadWithOverrides(db DatabaseOverrides) (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseDriver = strings.ToLower(firstNonEmpty(db.Driver, os.Getenv("DATABASE_DRIVER")))
	if cfg.DatabaseDriver == "" {
		cfg.DatabaseDriver = "postgres"
	}
	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite3" {
		return nil, fmt.Errorf("invalid DATABASE_DRIVER %q: must be postgres or sqlite3", cfg.DatabaseDriver)
	}

	cfg.DatabaseURL = firstNonEmpty(db.URL, os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.CronSpecReconcile = os.Getenv("CRON_SPEC_RECONCILE")
	if cfg.CronSpecReconcile == "" {
		cfg.CronSpecReconcile = "15 0 * * *" // Default: 00:15 daily, just after cycles roll over at midnight UTC
	}

	cfg.ReconcileWorkers, err = intFromEnv("RECONCILE_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	if cfg.ReconcileWorkers < 1 {
		return nil, fmt.Errorf("invalid RECONCILE_WORKERS: must be at least 1")
	}

	switch policy := MissingAnchorPolicy(strings.ToLower(os.Getenv("MISSING_ANCHOR_POLICY"))); policy {
	case "":
		cfg.MissingAnchorPolicy = MissingAnchorFallback
	case MissingAnchorFallback, MissingAnchorDefer:
		cfg.MissingAnchorPolicy = policy
	default:
		return nil, fmt.Errorf("invalid MISSING_ANCHOR_POLICY %q: must be fallback or defer", policy)
	}

	cfg.ValidationMode, err = cycle.ParseValidationMode(os.Getenv("CYCLE_VALIDATION_MODE"))
	if err != nil {
		return nil, fmt.Errorf("invalid CYCLE_VALIDATION_MODE: %w", err)
	}

	cfg.RepairBatchSize, err = intFromEnv("REPAIR_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	if cfg.RepairBatchSize < 1 {
		return nil, fmt.Errorf("invalid REPAIR_BATCH_SIZE: must be at least 1")
	}

	if raw := os.Getenv("REPAIR_BATCHES_PER_SECOND"); raw != "" {
		cfg.RepairBatchesPerSecond, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid REPAIR_BATCHES_PER_SECOND: %w", err)
		}
	}

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	return cfg, nil
}

func intFromEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
