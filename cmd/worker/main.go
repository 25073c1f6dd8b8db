/**
 * Contract OCR Worker - Main Entry Point
 *
 * Consumes process-document and continue-document tasks from Redis (asynq).
 *
 * Pipeline:
 * - Page images from a local directory or a MinIO bucket
 * - Recognition through Tesseract or Google Document AI, with retry and rate limiting
 * - Field parsing, multi-page aggregation and confidence scoring
 * - Pages beyond the processing budget continue asynchronously and merge into the cached result
 * - Optional PostgreSQL ledger of every extraction and validation
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/contract-ocr-worker/internal/cache"
	"github.com/adverant/nexus/contract-ocr-worker/internal/config"
	"github.com/adverant/nexus/contract-ocr-worker/internal/logging"
	"github.com/adverant/nexus/contract-ocr-worker/internal/pagesource"
	"github.com/adverant/nexus/contract-ocr-worker/internal/processor"
	"github.com/adverant/nexus/contract-ocr-worker/internal/queue"
	"github.com/adverant/nexus/contract-ocr-worker/internal/recognition"
	"github.com/adverant/nexus/contract-ocr-worker/internal/storage"
	"github.com/adverant/nexus/contract-ocr-worker/internal/telemetry"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		logging.NewLogger("worker").Error("Worker exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load environment variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log := logging.NewLogger("worker")

	log.Info("Contract OCR worker starting",
		"version", version,
		"recognizer", cfg.Recognizer,
		"cache", cfg.CacheBackend,
		"continuations", cfg.ContinuationBackend,
		"page_source", cfg.PageSource,
		"budget", cfg.ProcessingBudget,
		"workers", cfg.WorkerConcurrency,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics processor.Metrics
	if cfg.Telemetry {
		shutdown, err := telemetry.Setup(ctx, "contract-ocr-worker", version)
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		defer shutdown(context.Background())

		m, err := telemetry.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to create instruments: %w", err)
		}
		metrics = m
		log.Info("OpenTelemetry export enabled")
	}

	recognizer, closeRecognizer, err := recognition.New(ctx, cfg.RecognitionConfig(), logging.NewLogger("recognition"))
	if err != nil {
		return fmt.Errorf("failed to initialize recognizer: %w", err)
	}
	defer closeRecognizer()

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	var recorder processor.Recorder
	if cfg.DatabaseURL != "" {
		db, err := storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to ledger database: %w", err)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		recorder = db
		log.Info("Extraction ledger enabled")
	}

	var (
		scheduler processor.Scheduler
		runner    *queue.LocalRunner
	)
	switch cfg.ContinuationBackend {
	case "asynq":
		s, err := queue.NewAsynqScheduler(cfg.RedisURL, cfg.ContinuationQueue, logging.NewLogger("scheduler"))
		if err != nil {
			return fmt.Errorf("failed to initialize continuation scheduler: %w", err)
		}
		defer s.Close()
		scheduler = s
	default:
		if cfg.CacheBackend == "memory" {
			log.Debug("continuations run in-process against the memory cache")
		}
		runner = queue.NewLocalRunner(logging.NewLogger("continuations"),
			queue.WithWorkers(cfg.WorkerConcurrency),
			queue.WithProcessTimeout(cfg.ProcessingTimeout),
		)
		scheduler = runner
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		Recognizer:          recognizer,
		Store:               store,
		Scheduler:           scheduler,
		Recorder:            recorder,
		Metrics:             metrics,
		Logger:              logging.NewLogger("processor"),
		Budget:              cfg.ProcessingBudget,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		BatchConcurrency:    cfg.BatchConcurrency,
		MaxBatchSize:        cfg.MaxBatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize document processor: %w", err)
	}

	if runner != nil {
		runner.Start(proc)
	}

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.ContinuationQueue,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         proc,
		Source:            source,
		Logger:            logging.NewLogger("queue"),
		ProcessingTimeout: cfg.ProcessingTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize queue consumer: %w", err)
	}

	if err := consumer.Start(ctx); err != nil {
		return err
	}

	log.Info("Contract OCR worker is ready", "queue", cfg.ContinuationQueue)

	<-ctx.Done()
	log.Info("Shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping queue consumer", "error", err)
	}
	if runner != nil {
		if err := runner.Shutdown(shutdownCtx); err != nil {
			log.Error("Continuations did not drain", "error", err)
		}
	}

	log.Info("Shutdown complete")
	return nil
}

func newStore(ctx context.Context, cfg *config.Config) (cache.Store, func() error, error) {
	if cfg.CacheBackend == "redis" {
		s, err := cache.NewRedisStore(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect result cache: %w", err)
		}
		return s, s.Close, nil
	}
	return cache.NewMemoryStore(cfg.CacheMaxEntries, cfg.CacheTTL, logging.NewLogger("cache")), func() error { return nil }, nil
}

func newSource(cfg *config.Config) (pagesource.Source, error) {
	if cfg.PageSource == "minio" {
		s, err := pagesource.NewMinioSource(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MinIO page source: %w", err)
		}
		return s, nil
	}
	return pagesource.NewDirSource(cfg.PageDir), nil
}
