// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/aristath/qpubinder/internal/modules/binding"
	"github.com/aristath/qpubinder/internal/modules/catalog"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

// Catalog source kinds
const (
	SourceMock   = "mock"
	SourceFile   = "file"
	SourceSQLite = "sqlite"
	SourceS3     = "s3"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for databases (always absolute)
	Port      int
	LogLevel  string
	LogPretty bool
	DevMode   bool

	Catalog CatalogConfig
	Binding BindingConfig
	Backup  BackupConfig
}

// CatalogConfig selects and tunes the QPU catalog source
type CatalogConfig struct {
	Source          string // mock, file, sqlite or s3
	Path            string // file source path
	DBPath          string // sqlite inventory path
	S3              catalog.S3Config
	RefreshSchedule string // cron schedule, empty disables periodic refresh
	RefreshAttempts int
	RefreshBackoff  time.Duration
}

// BackupConfig controls snapshot uploads. The endpoint and credentials come
// from the catalog S3 settings; an empty bucket disables backups.
type BackupConfig struct {
	Bucket        string
	Prefix        string
	Format        string
	Schedule      string
	RetentionDays int
}

// Enabled reports whether snapshot backups are configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// BindingConfig holds engine and request defaults
type BindingConfig struct {
	ExactSearchMaxQubits  int
	ExactSearchTimeout    time.Duration
	ExactSearchNodeBudget int
	DefaultWeights        domain.Weights
	BatchWorkers          int
	CircuitCacheSize      int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("QPUBIND_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	defaults := binding.DefaultOptions()
	cfg := &Config{
		DataDir:   dataDir,
		Port:      getEnvAsInt("QPUBIND_PORT", 8080),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),
		DevMode:   getEnvAsBool("DEV_MODE", false),
		Catalog: CatalogConfig{
			Source: strings.ToLower(getEnv("CATALOG_SOURCE", SourceMock)),
			Path:   getEnv("CATALOG_PATH", ""),
			DBPath: getEnv("CATALOG_DB_PATH", filepath.Join(dataDir, "catalog.db")),
			S3: catalog.S3Config{
				Bucket:    getEnv("CATALOG_S3_BUCKET", ""),
				Key:       getEnv("CATALOG_S3_KEY", "catalog.json"),
				Endpoint:  getEnv("CATALOG_S3_ENDPOINT", ""),
				Region:    getEnv("CATALOG_S3_REGION", "auto"),
				AccessKey: getEnv("CATALOG_S3_ACCESS_KEY", ""),
				SecretKey: getEnv("CATALOG_S3_SECRET_KEY", ""),
			},
			RefreshSchedule: os.Getenv("CATALOG_REFRESH_SCHEDULE"),
			RefreshAttempts: getEnvAsInt("CATALOG_REFRESH_ATTEMPTS", 3),
			RefreshBackoff:  getEnvAsDuration("CATALOG_REFRESH_BACKOFF", 500*time.Millisecond),
		},
		Binding: BindingConfig{
			ExactSearchMaxQubits:  getEnvAsInt("EXACT_SEARCH_MAX_QUBITS", defaults.ExactSearchMaxQubits),
			ExactSearchTimeout:    getEnvAsDuration("EXACT_SEARCH_TIMEOUT", defaults.ExactSearchTimeout),
			ExactSearchNodeBudget: getEnvAsInt("EXACT_SEARCH_NODE_BUDGET", defaults.ExactSearchNodeBudget),
			DefaultWeights: domain.Weights{
				Fidelity: getEnvAsFloat("DEFAULT_WEIGHT_FIDELITY", 1),
				Latency:  getEnvAsFloat("DEFAULT_WEIGHT_LATENCY", 1),
				Cost:     getEnvAsFloat("DEFAULT_WEIGHT_COST", 1),
			},
			BatchWorkers:     getEnvAsInt("BATCH_WORKERS", runtime.NumCPU()),
			CircuitCacheSize: getEnvAsInt("CIRCUIT_CACHE_SIZE", 256),
		},
	}

	// An unset schedule means the default; an explicitly empty one disables refresh
	if _, set := os.LookupEnv("CATALOG_REFRESH_SCHEDULE"); !set {
		cfg.Catalog.RefreshSchedule = "@every 1m"
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var errs error

	if c.Port <= 0 || c.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("QPUBIND_PORT must be in 1..65535, got %d", c.Port))
	}

	switch c.Catalog.Source {
	case SourceMock, SourceSQLite:
	case SourceFile:
		if c.Catalog.Path == "" {
			errs = multierr.Append(errs, fmt.Errorf("CATALOG_PATH is required for the file catalog source"))
		} else if _, err := catalog.FormatFromPath(c.Catalog.Path); err != nil {
			errs = multierr.Append(errs, err)
		}
	case SourceS3:
		if c.Catalog.S3.Bucket == "" {
			errs = multierr.Append(errs, fmt.Errorf("CATALOG_S3_BUCKET is required for the s3 catalog source"))
		}
		if _, err := catalog.FormatFromPath(c.Catalog.S3.Key); err != nil {
			errs = multierr.Append(errs, err)
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown CATALOG_SOURCE %q (want mock, file, sqlite or s3)", c.Catalog.Source))
	}

	if c.Catalog.RefreshAttempts < 1 {
		errs = multierr.Append(errs, fmt.Errorf("CATALOG_REFRESH_ATTEMPTS must be at least 1"))
	}
	if c.Catalog.RefreshBackoff < 0 {
		errs = multierr.Append(errs, fmt.Errorf("CATALOG_REFRESH_BACKOFF must not be negative"))
	}

	if c.Binding.ExactSearchMaxQubits <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("EXACT_SEARCH_MAX_QUBITS must be positive"))
	}
	if c.Binding.ExactSearchTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("EXACT_SEARCH_TIMEOUT must be positive"))
	}
	if c.Binding.ExactSearchNodeBudget <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("EXACT_SEARCH_NODE_BUDGET must be positive"))
	}
	if c.Binding.BatchWorkers <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("BATCH_WORKERS must be positive"))
	}
	if c.Binding.CircuitCacheSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("CIRCUIT_CACHE_SIZE must be positive"))
	}
	if err := c.Binding.DefaultWeights.Validate(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("default weights: %w", err))
	}

	if c.Backup.Enabled() {
		if _, err := catalog.FormatFromPath("backup." + c.Backup.Format); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("CATALOG_BACKUP_FORMAT: %w", err))
		}
		if c.Backup.Schedule == "" {
			errs = multierr.Append(errs, fmt.Errorf("CATALOG_BACKUP_SCHEDULE is required when CATALOG_BACKUP_BUCKET is set"))
		}
		if c.Backup.RetentionDays < 0 {
			errs = multierr.Append(errs, fmt.Errorf("CATALOG_BACKUP_RETENTION_DAYS must not be negative"))
		}
	}

	return errs
}

// EngineOptions returns the binding engine options
func (c *Config) EngineOptions() binding.Options {
	return binding.Options{
		ExactSearchMaxQubits:  c.Binding.ExactSearchMaxQubits,
		ExactSearchTimeout:    c.Binding.ExactSearchTimeout,
		ExactSearchNodeBudget: c.Binding.ExactSearchNodeBudget,
	}
}

// RefresherConfig returns the catalog refresher settings
func (c *Config) RefresherConfig() catalog.RefresherConfig {
	return catalog.RefresherConfig{
		Attempts: c.Catalog.RefreshAttempts,
		Backoff:  c.Catalog.RefreshBackoff,
		Timeout:  30 * time.Second,
	}
}

// BackupS3Config returns the S3 settings used for snapshot uploads
func (c *Config) BackupS3Config() catalog.S3Config {
	s3 := c.Catalog.S3
	s3.Bucket = c.Backup.Bucket
	s3.Key = ""
	return s3
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
