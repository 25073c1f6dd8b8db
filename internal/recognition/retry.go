package recognition

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/adverant/nexus/contract-ocr-worker/internal/errors"
	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// RetryPolicy bounds how often and how patiently a call is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is 3 attempts with 1s, 2s, 4s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Delay is the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds or the attempts are exhausted. It returns the
// number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt < p.MaxAttempts {
			if err := p.Sleep(ctx, p.Delay(attempt)); err != nil {
				return attempt, err
			}
		}
	}
	return p.MaxAttempts, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retrying retries the wrapped recognizer according to its policy.
type Retrying struct {
	next   Recognizer
	policy RetryPolicy
	logger Logger
}

// WithRetry wraps next with policy. A nil logger disables retry logging.
func WithRetry(next Recognizer, policy RetryPolicy, logger Logger) *Retrying {
	return &Retrying{next: next, policy: policy, logger: logger}
}

// Recognize returns a RECOGNITION_FAILED error once every attempt has failed.
func (r *Retrying) Recognize(ctx context.Context, image document.PageImage, opts document.Options) ([]document.PageAnnotation, error) {
	var result []document.PageAnnotation

	attempts, err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		annotations, err := r.next.Recognize(ctx, image, opts)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("recognition attempt failed",
					"page", image.Number, "attempt", attempt, "error", err)
			}
			return err
		}
		result = annotations
		return nil
	})
	if err != nil {
		recErr := apperrors.NewRecognitionError("", image.Number, attempts, err)
		if s, ok := status.FromError(err); ok && s.Code() != codes.OK {
			recErr.Details["grpc_code"] = s.Code().String()
		}
		return nil, recErr
	}
	return result, nil
}
