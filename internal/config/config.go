/**
 * Configuration for PharmaScan
 *
 * Loads configuration from environment variables (optionally seeded from a
 * .env file by the caller) and an optional YAML tuning file.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Repository backends
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendJSONFile = "jsonfile"
)

// Queue backends
const (
	QueueList  = "list"
	QueueAsynq = "asynq"
)

// DefaultDictionaryURL is the published vocabulary bundle
const DefaultDictionaryURL = "https://yashasvi9199.github.io/PharmaScan-Dictionary/dictionary.bundle.json"

// Config holds service configuration
type Config struct {
	// HTTP boundary
	HTTPAddr       string
	MaxUploadBytes int64
	MaxImagePixels int64

	// Redis configuration
	RedisURL          string
	QueueName         string
	QueueBackend      string
	WorkerConcurrency int

	// Scan configuration
	ScanTimeout time.Duration

	// Dictionary configuration
	DictionaryURL           string
	DictionaryFile          string
	DictionaryCacheTTL      time.Duration
	DictionaryRetryInterval time.Duration

	// Persistence configuration
	RepositoryBackend string
	DatabaseURL       string
	SQLitePath        string
	ScanDBPath        string

	// Tesseract configuration
	TessdataPrefix string
	OCRLanguages   []string

	// Tuning file (YAML) for thresholds
	TuningFile string
	Tuning     *Tuning

	LogLevel string
	AppEnv   string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:                getEnvOrDefault("HTTP_ADDR", ":10000"),
		MaxUploadBytes:          getEnvAsInt64OrDefault("MAX_UPLOAD_BYTES", 10*1024*1024), // 10MB
		MaxImagePixels:          getEnvAsInt64OrDefault("MAX_IMAGE_PIXELS", 40_000_000),
		RedisURL:                getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:               getEnvOrDefault("QUEUE_NAME", "pharmascan:jobs"),
		QueueBackend:            getEnvOrDefault("QUEUE_BACKEND", QueueList),
		WorkerConcurrency:       getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ScanTimeout:             getEnvAsMillisOrDefault("SCAN_TIMEOUT_MS", 60*time.Second),
		DictionaryURL:           getEnvOrDefault("DICTIONARY_URL", DefaultDictionaryURL),
		DictionaryFile:          getEnvOrDefault("DICTIONARY_FILE", ""),
		DictionaryCacheTTL:      getEnvAsDurationOrDefault("DICTIONARY_CACHE_TTL", 0),
		DictionaryRetryInterval: getEnvAsDurationOrDefault("DICTIONARY_RETRY_INTERVAL", 30*time.Second),
		RepositoryBackend:       getEnvOrDefault("REPOSITORY_BACKEND", BackendJSONFile),
		DatabaseURL:             getEnvOrDefault("DATABASE_URL", ""),
		SQLitePath:              getEnvOrDefault("SQLITE_PATH", "./data/pharmascan.db"),
		ScanDBPath:              getEnvOrDefault("SCAN_DB_PATH", "./data/scan-db.json"),
		TessdataPrefix:          getEnvOrDefault("TESSDATA_PREFIX", ""),
		OCRLanguages:            splitList(getEnvOrDefault("OCR_LANGUAGES", "eng")),
		TuningFile:              getEnvOrDefault("TUNING_FILE", ""),
		LogLevel:                getEnvOrDefault("LOG_LEVEL", "info"),
		AppEnv:                  getEnvOrDefault("APP_ENV", "development"),
	}

	tuning, err := LoadTuning(cfg.TuningFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load tuning: %w", err)
	}
	if len(cfg.OCRLanguages) > 0 && len(tuning.OCR.Languages) == 0 {
		tuning.OCR.Languages = cfg.OCRLanguages
	}
	cfg.Tuning = tuning

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxUploadBytes < 1024 || c.MaxUploadBytes > 100*1024*1024 { // 1KB to 100MB
		return fmt.Errorf("MAX_UPLOAD_BYTES must be between 1KB and 100MB, got %d", c.MaxUploadBytes)
	}

	if c.MaxImagePixels < 1_000_000 || c.MaxImagePixels > 200_000_000 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be between 1M and 200M, got %d", c.MaxImagePixels)
	}

	if c.ScanTimeout <= 0 {
		return fmt.Errorf("SCAN_TIMEOUT_MS must be positive")
	}

	if c.DictionaryURL == "" && c.DictionaryFile == "" {
		return fmt.Errorf("one of DICTIONARY_URL or DICTIONARY_FILE is required")
	}

	switch c.RepositoryBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendJSONFile:
		if c.ScanDBPath == "" {
			return fmt.Errorf("SCAN_DB_PATH is required for the jsonfile backend")
		}
	default:
		return fmt.Errorf("unknown REPOSITORY_BACKEND %q", c.RepositoryBackend)
	}

	if c.QueueBackend != QueueList && c.QueueBackend != QueueAsynq {
		return fmt.Errorf("unknown QUEUE_BACKEND %q", c.QueueBackend)
	}

	if c.Tuning != nil {
		if err := c.Tuning.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsMillisOrDefault reads an integer millisecond count
func getEnvAsMillisOrDefault(key string, defaultValue time.Duration) time.Duration {
	ms := getEnvAsInt64OrDefault(key, -1)
	if ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

// getEnvAsDurationOrDefault reads a Go duration string such as "30s" or "24h"
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
