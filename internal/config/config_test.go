package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ProcessingBudget)
	assert.Equal(t, 0.95, cfg.ConfidenceThreshold)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.BatchConcurrency)
	assert.Equal(t, 100, cfg.MaxBatchSize)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.BaseDelay)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PROCESSING_BUDGET", "2500")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("CACHE_TTL", "30m")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 2500*time.Millisecond, cfg.ProcessingBudget)
	assert.Equal(t, 0.9, cfg.ConfidenceThreshold)
	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.Minio.UseSSL)
	assert.Equal(t, 10, cfg.WorkerConcurrency)
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
processing_budget: 3s
confidence_threshold: 0.8
recognizer: documentai
documentai:
  project_id: acme
  location: eu
  processor_id: ocr-1
page_source: minio
minio:
  endpoint: minio:9000
  bucket: contracts
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CONFIDENCE_THRESHOLD", "0.85")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.ProcessingBudget)
	assert.Equal(t, 0.85, cfg.ConfidenceThreshold)
	assert.Equal(t, "documentai", cfg.Recognizer)
	assert.Equal(t, "ocr-1", cfg.DocumentAI.ProcessorID)
	assert.Equal(t, "contracts", cfg.Minio.Bucket)
	assert.Equal(t, "eng", cfg.TesseractLanguage)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"budget too small", func(c *Config) { c.ProcessingBudget = time.Millisecond }},
		{"threshold above one", func(c *Config) { c.ConfidenceThreshold = 1.5 }},
		{"unknown recognizer", func(c *Config) { c.Recognizer = "abbyy" }},
		{"documentai without processor", func(c *Config) { c.Recognizer = "documentai" }},
		{"zero attempts", func(c *Config) { c.RecognitionMaxAttempts = 0 }},
		{"max delay below base", func(c *Config) { c.RecognitionMaxDelay = time.Millisecond }},
		{"negative rate", func(c *Config) { c.RecognitionRateLimit = -1 }},
		{"unknown cache", func(c *Config) { c.CacheBackend = "memcached" }},
		{"unknown continuation", func(c *Config) { c.ContinuationBackend = "kafka" }},
		{"asynq without redis", func(c *Config) { c.ContinuationBackend = "asynq"; c.RedisURL = "" }},
		{"timeout below budget", func(c *Config) { c.ProcessingTimeout = time.Second }},
		{"minio without bucket", func(c *Config) { c.PageSource = "minio"; c.Minio.Endpoint = "minio:9000" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	require.NoError(t, Defaults().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRecognitionConfig(t *testing.T) {
	cfg := Defaults()
	cfg.RecognitionRateLimit = 4

	rc := cfg.RecognitionConfig()
	assert.Equal(t, "tesseract", rc.Backend)
	assert.Equal(t, "eng", rc.Tesseract.Language)
	assert.Equal(t, 4.0, rc.RatePerSecond)
	assert.Equal(t, 4, rc.RateBurst)
}
