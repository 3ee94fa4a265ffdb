// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/featurestore"
	"github.com/aristath/opportunity-forecast/internal/reliability"
	"github.com/aristath/opportunity-forecast/internal/utils"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir             string // Base directory for all databases (always absolute)
	LogLevel            string
	LogPretty           bool
	Port                int
	DevMode             bool
	AllowedOrigins      []string // CORS, all origins when empty
	ModelVersion        string
	ReferenceTablesPath string // YAML reference tables, built-in defaults when empty
	Workers             int
	SnapshotPath        string // JSON array of opportunities for the scheduled re-forecast
	ReforecastSchedule  string // Empty disables the re-forecast job
	AuditRetry          featurestore.RetryPolicy
	Archive             *ArchiveConfig
}

// ArchiveConfig holds audit archive settings
type ArchiveConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Prefix          string
	Schedule        string
	RetentionDays   int
}

// ToS3Config converts the archive settings into the object storage client config
func (c *ArchiveConfig) ToS3Config() reliability.S3Config {
	return reliability.S3Config{
		Bucket:          c.Bucket,
		Endpoint:        c.Endpoint,
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		UsePathStyle:    c.UsePathStyle,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FORECAST_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	defaults := featurestore.DefaultRetryPolicy()
	cfg := &Config{
		DataDir:             absDataDir,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogPretty:           getEnvAsBool("LOG_PRETTY", false),
		Port:                getEnvAsInt("GO_PORT", 8001),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		AllowedOrigins:      utils.ParseCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
		ModelVersion:        getEnv("MODEL_VERSION", domain.ModelVersion),
		ReferenceTablesPath: getEnv("REFERENCE_TABLES_PATH", ""),
		Workers:             getEnvAsInt("FORECAST_WORKERS", 10),
		SnapshotPath:        getEnv("OPPORTUNITY_SNAPSHOT_PATH", ""),
		ReforecastSchedule:  getEnv("REFORECAST_SCHEDULE", "0 0 2 * * *"),
		AuditRetry: featurestore.RetryPolicy{
			Attempts:  getEnvAsInt("AUDIT_RETRY_ATTEMPTS", defaults.Attempts),
			BaseDelay: getEnvAsDuration("AUDIT_RETRY_BASE_DELAY", defaults.BaseDelay),
			MaxDelay:  getEnvAsDuration("AUDIT_RETRY_MAX_DELAY", defaults.MaxDelay),
		},
		Archive: loadArchiveConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.ModelVersion) == "" {
		return fmt.Errorf("MODEL_VERSION must not be empty")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("FORECAST_WORKERS must be positive, got %d", c.Workers)
	}
	if c.AuditRetry.Attempts <= 0 {
		return fmt.Errorf("AUDIT_RETRY_ATTEMPTS must be positive, got %d", c.AuditRetry.Attempts)
	}
	if c.AuditRetry.MaxDelay < c.AuditRetry.BaseDelay {
		return fmt.Errorf("AUDIT_RETRY_MAX_DELAY must not be below AUDIT_RETRY_BASE_DELAY")
	}
	if c.ReforecastSchedule != "" && c.SnapshotPath == "" {
		// Scheduling without a snapshot is a no-op, not an error
		c.ReforecastSchedule = ""
	}
	if c.Archive != nil && c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			return fmt.Errorf("ARCHIVE_BUCKET is required when ARCHIVE_ENABLED is set")
		}
		if c.Archive.RetentionDays < 0 {
			return fmt.Errorf("ARCHIVE_RETENTION_DAYS must not be negative")
		}
	}
	return nil
}

// AuditDBPath returns the feature store database path
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// ForecastsDBPath returns the forecast store database path
func (c *Config) ForecastsDBPath() string {
	return filepath.Join(c.DataDir, "forecasts.db")
}

// StagingDir returns the scratch directory for archive snapshots
func (c *Config) StagingDir() string {
	return filepath.Join(c.DataDir, "staging")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func loadArchiveConfig() *ArchiveConfig {
	return &ArchiveConfig{
		Enabled:         getEnvAsBool("ARCHIVE_ENABLED", false),
		Bucket:          getEnv("ARCHIVE_BUCKET", ""),
		Endpoint:        getEnv("ARCHIVE_ENDPOINT", ""),
		Region:          getEnv("ARCHIVE_REGION", "auto"),
		AccessKeyID:     getEnv("ARCHIVE_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("ARCHIVE_SECRET_ACCESS_KEY", ""),
		UsePathStyle:    getEnvAsBool("ARCHIVE_USE_PATH_STYLE", false),
		Prefix:          getEnv("ARCHIVE_PREFIX", "audit"),
		Schedule:        getEnv("ARCHIVE_SCHEDULE", "0 0 3 * * *"),
		RetentionDays:   getEnvAsInt("ARCHIVE_RETENTION_DAYS", 90),
	}
}
