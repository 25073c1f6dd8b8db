package processor

import (
	"context"
	"time"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// ContinuationRequest carries the pages left over once a document's
// synchronous budget ran out. Page bytes travel with the request so the
// consumer does not need access to the original page source.
type ContinuationRequest struct {
	DocumentID  string               `json:"document_id"`
	RunID       string               `json:"run_id"`
	Options     document.Options     `json:"options"`
	TotalPages  int                  `json:"total_pages"`
	Pages       []document.PageImage `json:"pages"`
	ScheduledAt time.Time            `json:"scheduled_at"`
}

// Scheduler hands a continuation to a runner that executes it off the
// caller's path. Schedule must not block on the continuation itself.
type Scheduler interface {
	Schedule(ctx context.Context, req *ContinuationRequest) error
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(ctx context.Context, req *ContinuationRequest) error

func (f SchedulerFunc) Schedule(ctx context.Context, req *ContinuationRequest) error {
	return f(ctx, req)
}

// Recorder mirrors cache writes into a durable ledger.
type Recorder interface {
	RecordExtraction(ctx context.Context, doc *document.ExtractedDocument) error
	RecordValidation(ctx context.Context, result *document.ValidationResult) error
}

// Metrics receives processing measurements.
type Metrics interface {
	RecordRequest(ctx context.Context, status string, elapsed time.Duration)
	RecordConfidence(ctx context.Context, score float64)
	RecordPage(ctx context.Context, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) RecordRequest(context.Context, string, time.Duration) {}
func (nopMetrics) RecordConfidence(context.Context, float64)            {}
func (nopMetrics) RecordPage(context.Context, string)                   {}

// Page outcomes reported to Metrics.
const (
	PageRecognized = "recognized"
	PageEmpty      = "empty"
	PageFailed     = "failed"
	PageDeferred   = "deferred"
)
