package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/contract-ocr-worker/internal/logging"
	"github.com/adverant/nexus/contract-ocr-worker/internal/processor"
)

// AsynqScheduler enqueues continuations on a Redis-backed asynq queue.
type AsynqScheduler struct {
	client    *asynq.Client
	queueName string
	maxRetry  int
	logger    *logging.Logger
}

// NewAsynqScheduler creates a scheduler for the given Redis URL and queue.
func NewAsynqScheduler(redisURL, queueName string, logger *logging.Logger) (*AsynqScheduler, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &AsynqScheduler{
		client:    asynq.NewClient(redisOpt),
		queueName: queueName,
		maxRetry:  5,
		logger:    logger,
	}, nil
}

// Schedule enqueues req and returns without waiting for it to run.
func (s *AsynqScheduler) Schedule(ctx context.Context, req *processor.ContinuationRequest) error {
	task, err := NewContinueDocumentTask(req)
	if err != nil {
		return err
	}

	info, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queueName),
		asynq.TaskID(continuationTaskID(req)),
		asynq.MaxRetry(s.maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		s.logger.Info("continuation already enqueued", "document_id", req.DocumentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue continuation: %w", err)
	}

	s.logger.Info("continuation enqueued",
		"document_id", req.DocumentID,
		"task_id", info.ID,
		"queue", info.Queue,
		"pages", len(req.Pages),
	)
	return nil
}

// Enqueue submits a process-document task.
func (s *AsynqScheduler) Enqueue(ctx context.Context, p ProcessPayload) error {
	task, err := NewProcessDocumentTask(p)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task, asynq.Queue(s.queueName), asynq.MaxRetry(s.maxRetry)); err != nil {
		return fmt.Errorf("failed to enqueue document: %w", err)
	}
	return nil
}

func (s *AsynqScheduler) Close() error {
	return s.client.Close()
}
