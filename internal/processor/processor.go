/**
 * Document Processor for the contract OCR worker
 *
 * Runs recognition page by page within a wall-clock budget:
 * - page 1 is always processed synchronously
 * - after each page the budget is checked; leftover pages go to a continuation
 * - the continuation merges into the same cache entry under the document lock
 * - validation replaces the cached result once every page has been merged
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/contract-ocr-worker/internal/cache"
	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
	apperrors "github.com/adverant/nexus/contract-ocr-worker/internal/errors"
	"github.com/adverant/nexus/contract-ocr-worker/internal/logging"
	"github.com/adverant/nexus/contract-ocr-worker/internal/pagesource"
	"github.com/adverant/nexus/contract-ocr-worker/internal/recognition"
	"github.com/adverant/nexus/contract-ocr-worker/internal/validation"
)

const (
	DefaultBudget           = 5 * time.Second
	DefaultBatchConcurrency = 5
	DefaultMaxBatchSize     = 100

	// maxMergeAttempts bounds compare-and-swap retries against a shared store.
	maxMergeAttempts = 5

	// finalizeTimeout bounds the cache write that finalizes a document after
	// the caller's context is gone.
	finalizeTimeout = 10 * time.Second
)

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Recognizer          recognition.Recognizer
	Store               cache.Store
	Scheduler           Scheduler
	Recorder            Recorder // optional
	Metrics             Metrics  // optional
	Logger              *logging.Logger
	Budget              time.Duration
	ConfidenceThreshold float64
	BatchConcurrency    int
	MaxBatchSize        int
}

// ProcessRequest represents a document processing request
type ProcessRequest struct {
	DocumentID string
	Source     pagesource.Source
	Ref        string
	Options    document.Options
	Budget     time.Duration // 0 uses the processor default
}

// DocumentProcessor handles document processing
type DocumentProcessor struct {
	recognizer       recognition.Recognizer
	store            cache.Store
	locks            *cache.KeyedLocker
	scheduler        Scheduler
	recorder         Recorder
	metrics          Metrics
	scorer           Scorer
	validator        *validation.Engine
	logger           *logging.Logger
	tracer           trace.Tracer
	budget           time.Duration
	batchConcurrency int
	maxBatchSize     int
	now              func() time.Time
	newRunID         func() string
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("continuation scheduler is required")
	}

	p := &DocumentProcessor{
		recognizer:       cfg.Recognizer,
		store:            cfg.Store,
		locks:            cache.NewKeyedLocker(),
		scheduler:        cfg.Scheduler,
		recorder:         cfg.Recorder,
		metrics:          cfg.Metrics,
		scorer:           Scorer{Threshold: cfg.ConfidenceThreshold},
		logger:           cfg.Logger,
		tracer:           otel.Tracer("contract-ocr/processor"),
		budget:           cfg.Budget,
		batchConcurrency: cfg.BatchConcurrency,
		maxBatchSize:     cfg.MaxBatchSize,
		now:              time.Now,
		newRunID:         uuid.NewString,
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	if p.logger == nil {
		p.logger = logging.NewLogger("processor")
	}
	if p.budget <= 0 {
		p.budget = DefaultBudget
	}
	if p.batchConcurrency <= 0 {
		p.batchConcurrency = DefaultBatchConcurrency
	}
	if p.maxBatchSize <= 0 {
		p.maxBatchSize = DefaultMaxBatchSize
	}
	p.validator = validation.NewEngine(p.scorer.threshold())
	return p, nil
}

// pageOutcome is the result of recognizing one page.
type pageOutcome struct {
	result document.PageResult
	ok     bool
}

// processPage recognizes one page. Recognition failures are logged and
// reported as !ok; they never abort the document.
func (p *DocumentProcessor) processPage(ctx context.Context, documentID string, img document.PageImage, opts document.Options) pageOutcome {
	annotations, err := p.recognizer.Recognize(ctx, img, opts)
	if err != nil {
		p.logger.Warn("page recognition failed, skipping",
			"document_id", documentID,
			"page", img.Number,
			"error", err,
		)
		p.metrics.RecordPage(ctx, PageFailed)
		return pageOutcome{}
	}

	result, ok := ProcessPage(img.Number, annotations)
	if !ok {
		p.logger.Warn("page produced no text", "document_id", documentID, "page", img.Number)
		p.metrics.RecordPage(ctx, PageEmpty)
		return pageOutcome{}
	}

	p.logger.Debug("page recognized",
		"document_id", documentID,
		"page", img.Number,
		"blocks", len(result.Blocks),
		"confidence", result.Confidence,
	)
	p.metrics.RecordPage(ctx, PageRecognized)
	return pageOutcome{result: result, ok: true}
}

// ProcessDocument processes pages synchronously until the budget is spent and
// schedules a continuation for the rest. The returned document carries
// partial metrics when pages remain.
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req *ProcessRequest) (*document.ExtractedDocument, error) {
	if req == nil || req.DocumentID == "" {
		return nil, apperrors.NewInvalidRequestError("", "document_id is required")
	}
	if req.Source == nil {
		return nil, apperrors.NewInvalidRequestError(req.DocumentID, "page source is required")
	}
	id := req.DocumentID
	budget := req.Budget
	if budget <= 0 {
		budget = p.budget
	}

	ctx, span := p.tracer.Start(ctx, "processor.ProcessDocument", trace.WithAttributes(
		attribute.String("document.id", id),
		attribute.Int64("budget.ms", budget.Milliseconds()),
	))
	defer span.End()

	start := p.now()
	p.logger.Info("Starting document processing", "document_id", id, "ref", req.Ref, "budget", budget)

	images, err := req.Source.FetchPageImages(ctx, req.Ref)
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(id, fmt.Sprintf("failed to fetch page images: %v", err))
	}
	if len(images) == 0 {
		return nil, apperrors.NewInvalidRequestError(id, "document has no pages")
	}

	unlock := p.locks.Lock(id)
	defer unlock()
	runID := p.newRunID()

	var (
		results []document.PageResult
		failed  []int
		next    int
	)
	for next < len(images) {
		if next > 0 && p.now().Sub(start) >= budget {
			p.logger.Info("budget exhausted, scheduling continuation",
				"document_id", id,
				"processed_pages", next,
				"remaining_pages", len(images)-next,
			)
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewProcessingTimeoutError(id, p.now().Sub(start), err)
		}

		out := p.processPage(ctx, id, images[next], req.Options)
		if out.ok {
			results = append(results, out.result)
		} else {
			failed = append(failed, images[next].Number)
		}
		next++
	}

	elapsed := p.now().Sub(start)
	remaining := images[next:]

	doc := Aggregate(id, results)
	doc.Metrics.TotalPages = len(images)
	doc.Metrics.ProcessedPages = next
	doc.Metrics.RemainingPages = len(remaining)
	doc.Metrics.FailedPages = failed
	doc.Metrics.BudgetMs = budget.Milliseconds()
	doc.Metrics.APILatencyMs = elapsed.Milliseconds()
	doc.Metrics.ProcessingTimeMs = minDuration(elapsed, budget).Milliseconds()
	doc.Metrics.ContinuationScheduled = len(remaining) > 0
	p.scorer.Apply(doc)
	if doc.Status == document.StatusFailed {
		doc.ErrorDetails = apperrors.NewNoTextExtractedError(id, len(images), failed).ToMap()
	}
	doc.CreatedAt = p.now().UTC()
	doc.UpdatedAt = doc.CreatedAt

	if err := p.store.Put(ctx, &cache.Entry{DocumentID: id, Document: doc, RunID: runID}); err != nil {
		return nil, apperrors.NewCacheFailedError(id, err)
	}
	p.record(ctx, doc)
	// The continuation merges under the same lock; release it before handing off.
	unlock()

	if len(remaining) > 0 {
		for range remaining {
			p.metrics.RecordPage(ctx, PageDeferred)
		}
		cont := &ContinuationRequest{
			DocumentID:  id,
			RunID:       runID,
			Options:     req.Options,
			TotalPages:  len(images),
			Pages:       remaining,
			ScheduledAt: p.now().UTC(),
		}
		if err := p.scheduler.Schedule(ctx, cont); err != nil {
			p.logger.Error("Failed to schedule continuation", "document_id", id, "error", err)
			schedErr := apperrors.NewScheduleFailedError(id, err)
			// Nothing will merge the remaining pages; finalize without them.
			if _, ferr := p.finalize(ctx, cont, continuationOutcome{
				failed:      pageNumbers(remaining),
				cause:       schedErr,
				unscheduled: true,
			}); ferr != nil {
				p.logger.Warn("Failed to finalize document after scheduling failure", "document_id", id, "error", ferr)
			}
			return nil, schedErr
		}
	}

	span.SetAttributes(
		attribute.String("document.status", string(doc.Status)),
		attribute.Int("pages.processed", next),
		attribute.Int("pages.remaining", len(remaining)),
	)
	p.metrics.RecordRequest(ctx, string(doc.Status), elapsed)
	if doc.Finalized() && doc.Status != document.StatusFailed {
		p.metrics.RecordConfidence(ctx, doc.ConfidenceScore)
	}

	p.logger.Info("Document processing complete",
		"document_id", id,
		"status", doc.Status,
		"confidence", doc.ConfidenceScore,
		"processed_pages", next,
		"remaining_pages", len(remaining),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return doc.Clone(), nil
}

// continuationOutcome is what a continuation produced for its pages.
type continuationOutcome struct {
	results []document.PageResult
	failed  []int
	elapsed time.Duration
	// cause is set when some pages were never recognized.
	cause       error
	unscheduled bool
}

// Continue processes the pages of a continuation and merges them into the
// cached document. Delivering the same continuation twice, or one from an
// earlier run of the document, is a no-op. If ctx ends mid-way the pages not
// yet recognized are merged as failed and a PROCESSING_TIMEOUT error is returned.
func (p *DocumentProcessor) Continue(ctx context.Context, req *ContinuationRequest) error {
	if req == nil || req.DocumentID == "" {
		return apperrors.NewInvalidRequestError("", "document_id is required")
	}
	id := req.DocumentID

	ctx, span := p.tracer.Start(ctx, "processor.Continue", trace.WithAttributes(
		attribute.String("document.id", id),
		attribute.Int("pages.count", len(req.Pages)),
	))
	defer span.End()

	start := p.now()
	p.logger.Info("Starting continuation", "document_id", id, "run_id", req.RunID, "pages", len(req.Pages))

	var out continuationOutcome
	for i, img := range req.Pages {
		if err := ctx.Err(); err != nil {
			out.cause = apperrors.NewProcessingTimeoutError(id, p.now().Sub(start), err)
			out.failed = append(out.failed, pageNumbers(req.Pages[i:])...)
			p.logger.Warn("continuation interrupted, remaining pages marked failed",
				"document_id", id,
				"remaining_pages", len(req.Pages)-i,
			)
			break
		}
		page := p.processPage(ctx, id, img, req.Options)
		if page.ok {
			out.results = append(out.results, page.result)
		} else {
			out.failed = append(out.failed, img.Number)
		}
	}
	out.elapsed = p.now().Sub(start)

	merged, err := p.finalize(ctx, req, out)
	if err != nil {
		return err
	}
	if merged != nil {
		span.SetAttributes(attribute.String("document.status", string(merged.Status)))
	}
	return out.cause
}

// Abandon finalizes a document whose continuation will not run again: its
// pages are merged as failed and the document is rescored so validation is
// no longer blocked. Stale or already merged continuations are ignored, as is
// a document that has left the cache.
func (p *DocumentProcessor) Abandon(ctx context.Context, req *ContinuationRequest, cause error) error {
	if req == nil || req.DocumentID == "" {
		return apperrors.NewInvalidRequestError("", "document_id is required")
	}
	p.logger.Warn("Abandoning continuation",
		"document_id", req.DocumentID,
		"run_id", req.RunID,
		"pages", len(req.Pages),
		"error", cause,
	)

	_, err := p.finalize(ctx, req, continuationOutcome{failed: pageNumbers(req.Pages), cause: cause})
	if apperrors.IsNotFound(err) {
		return nil
	}
	return err
}

// finalize merges out into the cached document under the document lock. It
// returns a nil document when the entry was already finalized or belongs to
// another run.
func (p *DocumentProcessor) finalize(ctx context.Context, req *ContinuationRequest, out continuationOutcome) (*document.ExtractedDocument, error) {
	id := req.DocumentID
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
		defer cancel()
	}

	unlock := p.locks.Lock(id)
	defer unlock()

	var (
		merged *document.ExtractedDocument
		skip   string
	)
	err := p.update(ctx, id, func(entry *cache.Entry) (*cache.Entry, error) {
		merged = nil
		switch {
		case entry.RunID != req.RunID:
			skip = "continuation belongs to an earlier run, ignoring"
			return nil, nil
		case entry.Document.Finalized():
			skip = "continuation already merged, ignoring"
			return nil, nil
		}
		merged = p.merge(entry.Document, req, out)
		return &cache.Entry{DocumentID: id, Document: merged, RunID: entry.RunID}, nil
	})
	if apperrors.IsNotFound(err) {
		p.logger.Warn("cached document expired before continuation merged", "document_id", id)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if merged == nil {
		p.logger.Warn(skip, "document_id", id, "run_id", req.RunID)
		return nil, nil
	}

	p.record(ctx, merged)
	p.metrics.RecordRequest(ctx, string(merged.Status), out.elapsed)
	if merged.Status != document.StatusFailed {
		p.metrics.RecordConfidence(ctx, merged.ConfidenceScore)
	}

	p.logger.Info("Continuation merged",
		"document_id", id,
		"status", merged.Status,
		"confidence", merged.ConfidenceScore,
		"total_pages", merged.Metrics.TotalPages,
		"failed_pages", len(merged.Metrics.FailedPages),
	)
	return merged, nil
}

// merge appends continuation pages to current and recomputes every derived field.
func (p *DocumentProcessor) merge(current *document.ExtractedDocument, req *ContinuationRequest, out continuationOutcome) *document.ExtractedDocument {
	have := make(map[int]bool, len(current.Pages)+len(current.Metrics.FailedPages))
	for _, page := range current.Pages {
		have[page.PageNumber] = true
	}
	for _, n := range current.Metrics.FailedPages {
		have[n] = true
	}

	pages := append([]document.PageResult(nil), current.Pages...)
	for _, r := range out.results {
		if !have[r.PageNumber] {
			pages = append(pages, r)
			have[r.PageNumber] = true
		}
	}
	failed := append([]int(nil), current.Metrics.FailedPages...)
	for _, n := range out.failed {
		if !have[n] {
			failed = append(failed, n)
			have[n] = true
		}
	}

	doc := Aggregate(current.DocumentID, pages)
	doc.Metrics = current.Metrics
	doc.Metrics.DocumentSize = len(doc.FullText)
	doc.Metrics.ProcessedPages = current.Metrics.ProcessedPages + len(req.Pages)
	if doc.Metrics.ProcessedPages > doc.Metrics.TotalPages {
		doc.Metrics.ProcessedPages = doc.Metrics.TotalPages
	}
	doc.Metrics.RemainingPages = 0
	doc.Metrics.FailedPages = failed
	doc.Metrics.ContinuationTimeMs = out.elapsed.Milliseconds()
	if out.unscheduled {
		doc.Metrics.ContinuationScheduled = false
	}

	p.scorer.Apply(doc)
	switch {
	case doc.Status == document.StatusFailed:
		doc.ErrorDetails = apperrors.NewNoTextExtractedError(doc.DocumentID, doc.Metrics.TotalPages, doc.Metrics.FailedPages).ToMap()
	case out.cause != nil:
		doc.ErrorDetails = errorDetails(out.cause)
	}
	doc.CreatedAt = current.CreatedAt
	doc.UpdatedAt = p.now().UTC()
	return doc
}

// ValidateDocument applies reviewer corrections to a finalized extraction.
// While a continuation is pending it fails with a retryable NOT_FINALIZED error.
func (p *DocumentProcessor) ValidateDocument(ctx context.Context, documentID string, corrected document.CorrectedData, notes string) (*document.ValidationResult, error) {
	if documentID == "" {
		return nil, apperrors.NewInvalidRequestError("", "document_id is required")
	}

	unlock := p.locks.Lock(documentID)
	defer unlock()

	var result *document.ValidationResult
	err := p.update(ctx, documentID, func(entry *cache.Entry) (*cache.Entry, error) {
		if !entry.Document.Finalized() {
			return nil, apperrors.NewNotFinalizedError(documentID, entry.Document.Metrics.RemainingPages)
		}
		res, err := p.validator.Validate(entry.Document, corrected, notes)
		if err != nil {
			return nil, err
		}
		result = res
		return &cache.Entry{DocumentID: documentID, Document: entry.Document, Validation: res, RunID: entry.RunID}, nil
	})
	if apperrors.IsNotFound(err) {
		return nil, apperrors.NewValidationError(documentID, "no cached extraction found for document", err)
	}
	if err != nil {
		return nil, err
	}

	if p.recorder != nil {
		if err := p.recorder.RecordValidation(ctx, result); err != nil {
			p.logger.Warn("Failed to record validation", "document_id", documentID, "error", err)
		}
	}
	p.logger.Info("Document validated",
		"document_id", documentID,
		"status", result.Status,
		"changes", result.Metadata.Changes.Count(),
		"validation_confidence", result.Metadata.ValidationConfidence,
	)
	return result.Clone(), nil
}

// GetCached returns the cached entry; use Entry.Latest for the current result.
func (p *DocumentProcessor) GetCached(ctx context.Context, documentID string) (*cache.Entry, error) {
	entry, err := p.store.Get(ctx, documentID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, apperrors.NewCacheFailedError(documentID, err)
	}
	return entry, nil
}

// ProcessBatch processes up to MaxBatchSize documents with bounded
// concurrency. A failing document yields a FAILED result in its slot.
func (p *DocumentProcessor) ProcessBatch(ctx context.Context, reqs []*ProcessRequest) ([]*document.ExtractedDocument, error) {
	if len(reqs) == 0 {
		return nil, apperrors.NewInvalidRequestError("", "batch is empty")
	}
	if len(reqs) > p.maxBatchSize {
		return nil, apperrors.NewInvalidRequestError("", fmt.Sprintf("batch of %d exceeds the limit of %d documents", len(reqs), p.maxBatchSize))
	}

	results := make([]*document.ExtractedDocument, len(reqs))
	var g errgroup.Group
	g.SetLimit(p.batchConcurrency)

	for i, req := range reqs {
		g.Go(func() error {
			doc, err := p.ProcessDocument(ctx, req)
			if err != nil {
				results[i] = failedDocument(req, err, p.now().UTC())
				return nil
			}
			results[i] = doc
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func failedDocument(req *ProcessRequest, err error, now time.Time) *document.ExtractedDocument {
	doc := &document.ExtractedDocument{
		Status:    document.StatusFailed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req != nil {
		doc.DocumentID = req.DocumentID
	}

	doc.ErrorDetails = errorDetails(err)
	return doc
}

func errorDetails(err error) map[string]interface{} {
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) {
		return pe.ToMap()
	}
	return map[string]interface{}{"message": err.Error()}
}

func pageNumbers(images []document.PageImage) []int {
	numbers := make([]int, 0, len(images))
	for _, img := range images {
		numbers = append(numbers, img.Number)
	}
	return numbers
}

// update applies fn to the current entry and writes the result with
// compare-and-swap, retrying on conflict. fn returning a nil entry skips
// the write. Callers hold the document lock.
func (p *DocumentProcessor) update(ctx context.Context, documentID string, fn func(*cache.Entry) (*cache.Entry, error)) error {
	for attempt := 1; attempt <= maxMergeAttempts; attempt++ {
		entry, err := p.store.Get(ctx, documentID)
		if err != nil {
			if apperrors.IsNotFound(err) {
				return err
			}
			return apperrors.NewCacheFailedError(documentID, err)
		}

		next, err := fn(entry)
		if err != nil || next == nil {
			return err
		}

		ok, err := p.store.CompareAndSwap(ctx, entry.Version, next)
		if err != nil {
			return apperrors.NewCacheFailedError(documentID, err)
		}
		if ok {
			return nil
		}
		p.logger.Debug("cache entry changed concurrently, retrying", "document_id", documentID, "attempt", attempt)
	}
	return apperrors.NewCacheFailedError(documentID, fmt.Errorf("entry kept changing after %d attempts", maxMergeAttempts))
}

func (p *DocumentProcessor) record(ctx context.Context, doc *document.ExtractedDocument) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordExtraction(ctx, doc); err != nil {
		p.logger.Warn("Failed to record extraction", "document_id", doc.DocumentID, "error", err)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
