package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adverant/nexus/contract-ocr-worker/internal/logging"
	"github.com/adverant/nexus/contract-ocr-worker/internal/processor"
)

// LocalRunner runs continuations on an in-process worker pool. It is the
// scheduler used by the CLI and by workers configured without a broker.
type LocalRunner struct {
	logger  *logging.Logger
	workers int
	timeout time.Duration

	ch   chan *processor.ContinuationRequest
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*LocalRunner)

func WithWorkers(n int) Option {
	return func(r *LocalRunner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(r *LocalRunner) {
		if n > 0 {
			r.ch = make(chan *processor.ContinuationRequest, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(r *LocalRunner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewLocalRunner(logger *logging.Logger, opts ...Option) *LocalRunner {
	r := &LocalRunner{
		logger:  logger,
		workers: 4,
		timeout: 5 * time.Minute,
		ch:      make(chan *processor.ContinuationRequest, 256),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start launches the workers. Continuations scheduled before Start are
// buffered and run once it is called.
func (r *LocalRunner) Start(c Continuer) {
	r.once.Do(func() {
		for i := 0; i < r.workers; i++ {
			r.wg.Add(1)
			go func(workerID int) {
				defer r.wg.Done()
				r.logger.Debug("worker started", "worker_id", workerID)

				for req := range r.ch {
					ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
					err := c.Continue(ctx, req)
					cancel()

					if err != nil {
						r.logger.Error("continuation failed", "worker_id", workerID, "document_id", req.DocumentID, "error", err)
						r.abandon(c, req, err)
					} else {
						r.logger.Info("continuation finished", "worker_id", workerID, "document_id", req.DocumentID)
					}
				}

				r.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// abandon finalizes the document of a failed continuation; the local
// runner never retries.
func (r *LocalRunner) abandon(c Continuer, req *processor.ContinuationRequest, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), abandonTimeout)
	defer cancel()
	if err := c.Abandon(ctx, req, cause); err != nil {
		r.logger.Error("failed to abandon continuation", "document_id", req.DocumentID, "error", err)
	}
}

// Schedule queues req. When the queue is full it waits for room or ctx.
func (r *LocalRunner) Schedule(ctx context.Context, req *processor.ContinuationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("local runner is shutting down")
	}

	select {
	case r.ch <- req:
		r.logger.Debug("queued continuation", "document_id", req.DocumentID, "pages", len(req.Pages))
		return nil
	default:
	}

	r.logger.Warn("queue full, applying backpressure", "document_id", req.DocumentID)
	select {
	case r.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for queued continuations to drain.
func (r *LocalRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); r.wg.Wait() }()

	select {
	case <-ctx.Done():
		r.logger.Warn("shutdown interrupted by context")
		return ctx.Err()
	case <-done:
		r.logger.Info("queue drained, shutdown complete")
		return nil
	}
}
