/**
 * Configuration for the contract OCR worker
 *
 * Defaults, then an optional YAML file named by CONFIG_FILE, then
 * environment variables. Later sources win.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adverant/nexus/contract-ocr-worker/internal/pagesource"
	"github.com/adverant/nexus/contract-ocr-worker/internal/recognition"
)

// Config holds worker configuration
type Config struct {
	// Extraction
	ProcessingBudget    time.Duration `yaml:"processing_budget"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`

	// Recognition backend and retry policy
	Recognizer             string                       `yaml:"recognizer"`
	TesseractLanguage      string                       `yaml:"tesseract_language"`
	DocumentAI             recognition.DocumentAIConfig `yaml:"documentai"`
	RecognitionMaxAttempts int                          `yaml:"recognition_max_attempts"`
	RecognitionBaseDelay   time.Duration                `yaml:"recognition_base_delay"`
	RecognitionMaxDelay    time.Duration                `yaml:"recognition_max_delay"`
	RecognitionRateLimit   float64                      `yaml:"recognition_rate_limit"`

	// Result cache
	CacheBackend    string        `yaml:"cache_backend"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`

	// Redis configuration
	RedisURL string `yaml:"redis_url"`

	// Continuations
	ContinuationBackend string `yaml:"continuation_backend"`
	ContinuationQueue   string `yaml:"continuation_queue"`

	// Worker configuration
	WorkerConcurrency int           `yaml:"worker_concurrency"`
	BatchConcurrency  int           `yaml:"batch_concurrency"`
	MaxBatchSize      int           `yaml:"max_batch_size"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout"`

	// Page images
	PageSource string                 `yaml:"page_source"`
	PageDir    string                 `yaml:"page_dir"`
	Minio      pagesource.MinioConfig `yaml:"minio"`

	// PostgreSQL ledger, disabled when empty
	DatabaseURL string `yaml:"database_url"`

	Telemetry bool   `yaml:"telemetry"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		ProcessingBudget:       5 * time.Second,
		ConfidenceThreshold:    0.95,
		Recognizer:             "tesseract",
		TesseractLanguage:      "eng",
		RecognitionMaxAttempts: 3,
		RecognitionBaseDelay:   time.Second,
		RecognitionMaxDelay:    30 * time.Second,
		CacheBackend:           "memory",
		CacheTTL:               15 * time.Minute,
		CacheMaxEntries:        1000,
		RedisURL:               "redis://localhost:6379",
		ContinuationBackend:    "local",
		ContinuationQueue:      "contract-ocr",
		WorkerConcurrency:      10,
		BatchConcurrency:       5,
		MaxBatchSize:           100,
		ProcessingTimeout:      5 * time.Minute,
		PageSource:             "dir",
		PageDir:                "/data/pages",
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// LoadConfig loads configuration from CONFIG_FILE and environment variables
func LoadConfig() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ProcessingBudget = getEnvAsDurationOrDefault("PROCESSING_BUDGET", c.ProcessingBudget)
	c.ConfidenceThreshold = getEnvAsFloatOrDefault("CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)

	c.Recognizer = getEnvOrDefault("RECOGNIZER", c.Recognizer)
	c.TesseractLanguage = getEnvOrDefault("TESSERACT_LANGUAGE", c.TesseractLanguage)
	c.DocumentAI.ProjectID = getEnvOrDefault("DOCUMENTAI_PROJECT_ID", c.DocumentAI.ProjectID)
	c.DocumentAI.Location = getEnvOrDefault("DOCUMENTAI_LOCATION", c.DocumentAI.Location)
	c.DocumentAI.ProcessorID = getEnvOrDefault("DOCUMENTAI_PROCESSOR_ID", c.DocumentAI.ProcessorID)
	c.DocumentAI.CredentialsFile = getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", c.DocumentAI.CredentialsFile)
	c.RecognitionMaxAttempts = getEnvAsIntOrDefault("RECOGNITION_MAX_ATTEMPTS", c.RecognitionMaxAttempts)
	c.RecognitionBaseDelay = getEnvAsDurationOrDefault("RECOGNITION_BASE_DELAY", c.RecognitionBaseDelay)
	c.RecognitionMaxDelay = getEnvAsDurationOrDefault("RECOGNITION_MAX_DELAY", c.RecognitionMaxDelay)
	c.RecognitionRateLimit = getEnvAsFloatOrDefault("RECOGNITION_RATE_LIMIT", c.RecognitionRateLimit)

	c.CacheBackend = getEnvOrDefault("CACHE_BACKEND", c.CacheBackend)
	c.CacheTTL = getEnvAsDurationOrDefault("CACHE_TTL", c.CacheTTL)
	c.CacheMaxEntries = getEnvAsIntOrDefault("CACHE_MAX_ENTRIES", c.CacheMaxEntries)
	c.RedisURL = getEnvOrDefault("REDIS_URL", c.RedisURL)

	c.ContinuationBackend = getEnvOrDefault("CONTINUATION_BACKEND", c.ContinuationBackend)
	c.ContinuationQueue = getEnvOrDefault("CONTINUATION_QUEUE", c.ContinuationQueue)

	c.WorkerConcurrency = getEnvAsIntOrDefault("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.BatchConcurrency = getEnvAsIntOrDefault("BATCH_CONCURRENCY", c.BatchConcurrency)
	c.MaxBatchSize = getEnvAsIntOrDefault("MAX_BATCH_SIZE", c.MaxBatchSize)
	c.ProcessingTimeout = getEnvAsDurationOrDefault("PROCESSING_TIMEOUT", c.ProcessingTimeout)

	c.PageSource = getEnvOrDefault("PAGE_SOURCE", c.PageSource)
	c.PageDir = getEnvOrDefault("PAGE_DIR", c.PageDir)
	c.Minio.Endpoint = getEnvOrDefault("MINIO_ENDPOINT", c.Minio.Endpoint)
	c.Minio.AccessKey = getEnvOrDefault("MINIO_ACCESS_KEY", c.Minio.AccessKey)
	c.Minio.SecretKey = getEnvOrDefault("MINIO_SECRET_KEY", c.Minio.SecretKey)
	c.Minio.Bucket = getEnvOrDefault("MINIO_BUCKET", c.Minio.Bucket)
	c.Minio.UseSSL = getEnvAsBoolOrDefault("MINIO_USE_SSL", c.Minio.UseSSL)

	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	c.Telemetry = getEnvAsBoolOrDefault("TELEMETRY", c.Telemetry)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnvOrDefault("LOG_FORMAT", c.LogFormat)
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.ProcessingBudget < 100*time.Millisecond || c.ProcessingBudget > 10*time.Minute {
		return fmt.Errorf("PROCESSING_BUDGET must be between 100ms and 10m, got %s", c.ProcessingBudget)
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be between 0 and 1, got %v", c.ConfidenceThreshold)
	}

	switch c.Recognizer {
	case "tesseract":
	case "documentai":
		if c.DocumentAI.ProjectID == "" || c.DocumentAI.Location == "" || c.DocumentAI.ProcessorID == "" {
			return fmt.Errorf("DOCUMENTAI_PROJECT_ID, DOCUMENTAI_LOCATION and DOCUMENTAI_PROCESSOR_ID are required for the documentai recognizer")
		}
	default:
		return fmt.Errorf("RECOGNIZER must be tesseract or documentai, got %q", c.Recognizer)
	}

	if c.RecognitionMaxAttempts < 1 || c.RecognitionMaxAttempts > 10 {
		return fmt.Errorf("RECOGNITION_MAX_ATTEMPTS must be between 1 and 10, got %d", c.RecognitionMaxAttempts)
	}

	if c.RecognitionBaseDelay < 0 || c.RecognitionMaxDelay < c.RecognitionBaseDelay {
		return fmt.Errorf("RECOGNITION_MAX_DELAY (%s) must be at least RECOGNITION_BASE_DELAY (%s)", c.RecognitionMaxDelay, c.RecognitionBaseDelay)
	}

	if c.RecognitionRateLimit < 0 {
		return fmt.Errorf("RECOGNITION_RATE_LIMIT must not be negative, got %v", c.RecognitionRateLimit)
	}

	switch c.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory or redis, got %q", c.CacheBackend)
	}

	if c.CacheTTL < time.Second {
		return fmt.Errorf("CACHE_TTL must be at least 1s, got %s", c.CacheTTL)
	}

	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be positive, got %d", c.CacheMaxEntries)
	}

	switch c.ContinuationBackend {
	case "local", "asynq":
	default:
		return fmt.Errorf("CONTINUATION_BACKEND must be local or asynq, got %q", c.ContinuationBackend)
	}

	if (c.CacheBackend == "redis" || c.ContinuationBackend == "asynq") && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.ContinuationQueue == "" {
		return fmt.Errorf("CONTINUATION_QUEUE is required")
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.BatchConcurrency < 1 || c.BatchConcurrency > c.WorkerConcurrency*10 {
		return fmt.Errorf("BATCH_CONCURRENCY must be between 1 and %d, got %d", c.WorkerConcurrency*10, c.BatchConcurrency)
	}

	if c.MaxBatchSize < 1 || c.MaxBatchSize > 1000 {
		return fmt.Errorf("MAX_BATCH_SIZE must be between 1 and 1000, got %d", c.MaxBatchSize)
	}

	if c.ProcessingTimeout < c.ProcessingBudget {
		return fmt.Errorf("PROCESSING_TIMEOUT (%s) must be at least PROCESSING_BUDGET (%s)", c.ProcessingTimeout, c.ProcessingBudget)
	}

	switch c.PageSource {
	case "dir":
		if c.PageDir == "" {
			return fmt.Errorf("PAGE_DIR is required for the dir page source")
		}
	case "minio":
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio page source")
		}
	default:
		return fmt.Errorf("PAGE_SOURCE must be dir or minio, got %q", c.PageSource)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// RetryPolicy is the recognition retry policy described by c.
func (c *Config) RetryPolicy() recognition.RetryPolicy {
	p := recognition.DefaultRetryPolicy()
	p.MaxAttempts = c.RecognitionMaxAttempts
	p.BaseDelay = c.RecognitionBaseDelay
	p.MaxDelay = c.RecognitionMaxDelay
	return p
}

// RecognitionConfig assembles the recognizer settings.
func (c *Config) RecognitionConfig() recognition.Config {
	burst := int(c.RecognitionRateLimit)
	if burst < 1 {
		burst = 1
	}
	return recognition.Config{
		Backend:       c.Recognizer,
		Tesseract:     recognition.TesseractConfig{Language: c.TesseractLanguage, EnhancedDPI: 300},
		DocumentAI:    c.DocumentAI,
		RatePerSecond: c.RecognitionRateLimit,
		RateBurst:     burst,
		Retry:         c.RetryPolicy(),
	}
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

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault accepts Go durations ("5s") or bare milliseconds.
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if ms, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
