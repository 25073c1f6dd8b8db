/**
 * Queue Consumer for the contract OCR worker
 *
 * Consumes process-document and continue-document tasks from Redis using
 * asynq. Continuations are the second half of documents whose synchronous
 * budget ran out; they merge into the cached result for the same document.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
	"github.com/adverant/nexus/contract-ocr-worker/internal/errors"
	"github.com/adverant/nexus/contract-ocr-worker/internal/logging"
	"github.com/adverant/nexus/contract-ocr-worker/internal/pagesource"
	"github.com/adverant/nexus/contract-ocr-worker/internal/processor"
)

// DocumentService is the part of the processor the consumer drives.
type DocumentService interface {
	ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*document.ExtractedDocument, error)
	Continuer
}

// Continuer runs continuation requests. Abandon finalizes the document of a
// continuation that will not be attempted again.
type Continuer interface {
	Continue(ctx context.Context, req *processor.ContinuationRequest) error
	Abandon(ctx context.Context, req *processor.ContinuationRequest, cause error) error
}

// abandonTimeout bounds Abandon once the task's own deadline may have passed.
const abandonTimeout = 30 * time.Second

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor DocumentService
	source    pagesource.Source
	logger    *logging.Logger
	config    *ConsumerConfig

	// lastAttempt reports whether a failing task will not be retried.
	lastAttempt func(ctx context.Context) bool
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         DocumentService
	Source            pagesource.Source
	Logger            *logging.Logger
	ProcessingTimeout time.Duration // default: 5 minutes
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("page source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("queue")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := cfg.Logger
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger: logger.Asynq(),
		},
	)

	consumer := newConsumer(cfg)
	consumer.server = server
	return consumer, nil
}

func newConsumer(cfg *ConsumerConfig) *Consumer {
	c := &Consumer{
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		source:    cfg.Source,
		logger:      cfg.Logger,
		config:      cfg,
		lastAttempt: retriesExhausted,
	}
	c.mux.HandleFunc(TypeProcessDocument, c.handleProcessDocument)
	c.mux.HandleFunc(TypeContinueDocument, c.handleContinueDocument)
	return c
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

func (c *Consumer) timeout() time.Duration {
	if c.config.ProcessingTimeout > 0 {
		return c.config.ProcessingTimeout
	}
	return 5 * time.Minute
}

// handleProcessDocument runs the synchronous part of a document.
func (c *Consumer) handleProcessDocument(ctx context.Context, task *asynq.Task) error {
	var job ProcessPayload
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}

	timeout := c.timeout()
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	doc, err := c.processor.ProcessDocument(processCtx, &processor.ProcessRequest{
		DocumentID: job.DocumentID,
		Source:     c.source,
		Ref:        job.Ref,
		Options:    job.Options,
		Budget:     job.budget(),
	})
	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("processing timeout: %w", errors.NewProcessingTimeoutError(job.DocumentID, timeout, err))
		}
		if errors.HasCode(err, errors.ErrorInvalidRequest) {
			return fmt.Errorf("document processing rejected: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("document processing failed: %w", err)
	}

	c.logger.Info("Processing completed",
		"document_id", job.DocumentID,
		"status", doc.Status,
		"confidence", doc.ConfidenceScore,
		"remaining_pages", doc.Metrics.RemainingPages,
		"duration", time.Since(start),
	)
	return nil
}

// handleContinueDocument merges the remaining pages of a document.
func (c *Consumer) handleContinueDocument(ctx context.Context, task *asynq.Task) error {
	var req processor.ContinuationRequest
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		return fmt.Errorf("failed to unmarshal continuation: %v: %w", err, asynq.SkipRetry)
	}

	processCtx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	err := c.processor.Continue(processCtx, &req)
	switch {
	case err == nil:
		return nil
	case errors.IsNotFound(err) || errors.HasCode(err, errors.ErrorInvalidRequest):
		return fmt.Errorf("continuation dropped: %v: %w", err, asynq.SkipRetry)
	case errors.HasCode(err, errors.ErrorProcessingTimeout):
		// Pages not reached were merged as failed, so the document is final.
		return fmt.Errorf("continuation timed out: %v: %w", err, asynq.SkipRetry)
	}

	if c.lastAttempt(ctx) {
		abandonCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abandonTimeout)
		defer cancel()
		if aerr := c.processor.Abandon(abandonCtx, &req, err); aerr != nil {
			c.logger.Error("Failed to abandon continuation", "document_id", req.DocumentID, "error", aerr)
			return fmt.Errorf("continuation failed: %w", err)
		}
		return fmt.Errorf("continuation abandoned after final attempt: %v: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("continuation failed: %w", err)
}

func retriesExhausted(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
