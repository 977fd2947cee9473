package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all daemon configuration.
type Config struct {
	// Ops configuration (health/metrics endpoints)
	Ops OpsConfig

	// Database configuration
	Database DatabaseConfig

	// Synchronization engine configuration
	Sync SyncConfig

	// Credential provisioner configuration
	Credentials CredentialsConfig

	// Outcome event publishing configuration
	Events EventsConfig

	// Logging
	LogLevel string
	LogJSON  bool
}

// OpsConfig holds the operational HTTP server configuration.
type OpsConfig struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string // "postgres" or "sqlite3"
	DSN    string
}

// SyncConfig tunes the synchronization pool.
type SyncConfig struct {
	// Concurrency is the target number of long-lived workers.
	Concurrency int
	// JobTimeout is how long a worker may process a single candidate
	// before the supervisor retires it.
	JobTimeout time.Duration
	// ReconcileSchedule is the cron spec driving supervisor reconciliation.
	ReconcileSchedule string
	// SourcesFile is the path of the YAML per-source settings file.
	SourcesFile string
}

// CredentialsConfig locates the external password helper programs.
type CredentialsConfig struct {
	HelperProgram    string
	AltHelperProgram string
	OperationTimeout time.Duration
}

// EventsConfig configures the optional Redis outcome publisher. An empty
// RedisURL disables it.
type EventsConfig struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int
	Channel       string
}

// Load reads configuration from FEDSYNC_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Ops: OpsConfig{
			ListenAddr:      getEnv("FEDSYNC_LISTEN_ADDR", ":9090"),
			ShutdownTimeout: getEnvDuration("FEDSYNC_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver: getEnv("FEDSYNC_DB_DRIVER", "postgres"),
			DSN:    getEnv("FEDSYNC_DB_DSN", "postgres://localhost/fedsync?sslmode=disable"),
		},
		Sync: SyncConfig{
			Concurrency:       getEnvInt("FEDSYNC_SYNC_CONCURRENCY", 10),
			JobTimeout:        getEnvDuration("FEDSYNC_SYNC_JOB_TIMEOUT", 20*time.Minute),
			ReconcileSchedule: getEnv("FEDSYNC_SYNC_RECONCILE_SCHEDULE", "@every 1m"),
			SourcesFile:       getEnv("FEDSYNC_SOURCES_FILE", ""),
		},
		Credentials: CredentialsConfig{
			HelperProgram:    getEnv("FEDSYNC_PASSWORD_HELPER", ""),
			AltHelperProgram: getEnv("FEDSYNC_ALT_PASSWORD_HELPER", ""),
			OperationTimeout: getEnvDuration("FEDSYNC_PASSWORD_TIMEOUT", 2*time.Minute),
		},
		Events: EventsConfig{
			RedisURL:      getEnv("FEDSYNC_REDIS_URL", ""),
			RedisPassword: getEnv("FEDSYNC_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("FEDSYNC_REDIS_DB", 0),
			Channel:       getEnv("FEDSYNC_EVENTS_CHANNEL", "fedsync.outcomes"),
		},
		LogLevel: getEnv("FEDSYNC_LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("FEDSYNC_LOG_JSON", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Ops.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("sync concurrency must be positive, got %d", c.Sync.Concurrency)
	}
	if c.Sync.JobTimeout <= 0 {
		return fmt.Errorf("sync job timeout must be positive, got %v", c.Sync.JobTimeout)
	}
	if c.Sync.ReconcileSchedule == "" {
		return fmt.Errorf("reconcile schedule is required")
	}
	return nil
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
