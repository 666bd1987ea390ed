// Package config loads process configuration from environment variables and
// an optional .env file. Configuration is resolved once at startup and is
// read-only afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Persistence backends.
const (
	BackendBigQuery = "bigquery"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
)

// ConfigurationError reports a missing or invalid setting. It is fatal:
// the process must not start with an undefined configuration.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Key, e.Reason)
}

// Config is the immutable process configuration.
type Config struct {
	ProvisionRatio decimal.Decimal

	Persist   PersistConfig
	Storage   StorageConfig
	Workers   WorkerConfig
	Port      string
	LogLevel  string
	LogFormat string
}

// PersistConfig selects and configures the persistence backend.
type PersistConfig struct {
	Backend   string
	ProjectID string
	DatasetID string
	TableID   string
	BoltPath  string
}

// StorageConfig describes which landed objects are accepted as batches.
type StorageConfig struct {
	Bucket     string
	FileSuffix string
}

// WorkerConfig bounds concurrency and re-drive behaviour.
type WorkerConfig struct {
	ItemLimit      int
	JobWorkers     int
	QueueSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	JobRetention   int
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded when present; a custom path may be given instead.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	ratio, err := ParseRatio(os.Getenv("PROVISION_RATIO"))
	if err != nil {
		return nil, err
	}

	itemLimit, err := parseIntEnv("WORKER_LIMIT", 10, 1)
	if err != nil {
		return nil, err
	}
	jobWorkers, err := parseIntEnv("JOB_WORKERS", 5, 1)
	if err != nil {
		return nil, err
	}
	queueSize, err := parseIntEnv("QUEUE_SIZE", 100, 1)
	if err != nil {
		return nil, err
	}
	maxRetries, err := parseIntEnv("MAX_RETRIES", 3, 0)
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDurationEnv("RETRY_BASE_DELAY", time.Second)
	if err != nil {
		return nil, err
	}
	retryMaxDelay, err := parseDurationEnv("RETRY_MAX_DELAY", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	retention, err := parseIntEnv("JOB_RETENTION", 1000, 1)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ProvisionRatio: ratio,
		Persist: PersistConfig{
			Backend:   strings.ToLower(getEnvOrDefault("PERSIST_BACKEND", BackendBigQuery)),
			ProjectID: os.Getenv("GCP_PROJECT"),
			DatasetID: getEnvOrDefault("BQ_DATASET", "finance"),
			TableID:   getEnvOrDefault("BQ_TABLE", "transactions"),
			BoltPath:  getEnvOrDefault("BOLT_PATH", "transactions.db"),
		},
		Storage: StorageConfig{
			Bucket:     os.Getenv("GCS_BUCKET"),
			FileSuffix: getEnvOrDefault("FILE_SUFFIX", ".csv"),
		},
		Workers: WorkerConfig{
			ItemLimit:      itemLimit,
			JobWorkers:     jobWorkers,
			QueueSize:      queueSize,
			MaxRetries:     maxRetries,
			RetryBaseDelay: retryDelay,
			RetryMaxDelay:  retryMaxDelay,
			JobRetention:   retention,
		},
		Port:      getEnvOrDefault("PORT", "8080"),
		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: os.Getenv("LOG_FORMAT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.Persist.Backend {
	case BackendBigQuery:
		if c.Persist.ProjectID == "" {
			return &ConfigurationError{Key: "GCP_PROJECT", Reason: "required for the bigquery backend"}
		}
	case BackendBolt:
		if c.Persist.BoltPath == "" {
			return &ConfigurationError{Key: "BOLT_PATH", Reason: "required for the bolt backend"}
		}
	case BackendMemory:
	default:
		return &ConfigurationError{Key: "PERSIST_BACKEND", Reason: fmt.Sprintf("unknown backend %q", c.Persist.Backend)}
	}

	if c.ProvisionRatio.IsNegative() {
		return &ConfigurationError{Key: "PROVISION_RATIO", Reason: "must not be negative"}
	}

	if c.Workers.RetryMaxDelay < c.Workers.RetryBaseDelay {
		return &ConfigurationError{Key: "RETRY_MAX_DELAY", Reason: "must not be below RETRY_BASE_DELAY"}
	}

	return nil
}

// ParseRatio parses the provision ratio. Blank input is an error: there is
// no default ratio.
func ParseRatio(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, &ConfigurationError{Key: "PROVISION_RATIO", Reason: "not set"}
	}

	ratio, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &ConfigurationError{Key: "PROVISION_RATIO", Reason: fmt.Sprintf("not a decimal: %q", raw)}
	}
	if ratio.IsNegative() {
		return decimal.Zero, &ConfigurationError{Key: "PROVISION_RATIO", Reason: "must not be negative"}
	}

	return ratio, nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an int from an environment variable, enforcing a lower bound.
func parseIntEnv(key string, defaultValue, min int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid integer value: %s", value)}
	}
	if parsed < min {
		return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("must be at least %d", min)}
	}

	return parsed, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return 0, &ConfigurationError{Key: key, Reason: fmt.Sprintf("invalid duration: %s", value)}
	}

	return parsed, nil
}
