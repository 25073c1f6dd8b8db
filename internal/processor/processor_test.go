package processor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/contract-ocr-worker/internal/cache"
	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
	apperrors "github.com/adverant/nexus/contract-ocr-worker/internal/errors"
	"github.com/adverant/nexus/contract-ocr-worker/internal/logging"
	"github.com/adverant/nexus/contract-ocr-worker/internal/pagesource"
	"github.com/adverant/nexus/contract-ocr-worker/internal/recognition"
)

const acmeProvider = "Provider: Acme Inc., a Delaware corporation, with its principal place of business at 1 Main St."

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// scriptedPage is what the fake recognizer returns for one page number.
type scriptedPage struct {
	annotations []document.PageAnnotation
	err         error
	takes       time.Duration
}

func scriptedRecognizer(clock *testClock, script map[int]scriptedPage) recognition.Recognizer {
	return recognition.RecognizerFunc(func(ctx context.Context, img document.PageImage, opts document.Options) ([]document.PageAnnotation, error) {
		page, ok := script[img.Number]
		if !ok {
			return nil, fmt.Errorf("no script for page %d", img.Number)
		}
		clock.Advance(page.takes)
		return page.annotations, page.err
	})
}

func textPage(text string, confidences ...float64) scriptedPage {
	annotations := []document.PageAnnotation{{Text: text}}
	for i, c := range confidences {
		annotations = append(annotations, document.PageAnnotation{
			Text:       fmt.Sprintf("block-%d", i),
			Confidence: c,
			Bounds:     document.Bounds{Left: i, Top: i, Right: i + 10, Bottom: i + 10},
		})
	}
	return scriptedPage{annotations: annotations, takes: time.Second}
}

func pages(n int) pagesource.Static {
	out := make(pagesource.Static, n)
	for i := range out {
		out[i] = document.PageImage{Number: i + 1, Data: []byte{byte(i)}}
	}
	return out
}

type harness struct {
	proc      *DocumentProcessor
	clock     *testClock
	store     *cache.MemoryStore
	scheduled []*ContinuationRequest
}

func newHarness(t *testing.T, script map[int]scriptedPage) *harness {
	t.Helper()
	h := &harness{
		clock: &testClock{t: time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)},
		store: cache.NewMemoryStore(0, 0, logging.Discard()),
	}
	proc, err := NewDocumentProcessor(&ProcessorConfig{
		Recognizer: scriptedRecognizer(h.clock, script),
		Store:      h.store,
		Scheduler: SchedulerFunc(func(ctx context.Context, req *ContinuationRequest) error {
			h.scheduled = append(h.scheduled, req)
			return nil
		}),
		Logger: logging.Discard(),
		Budget: 5 * time.Second,
	})
	require.NoError(t, err)
	proc.now = h.clock.Now
	h.proc = proc
	return h
}

func (h *harness) process(t *testing.T, id string, n int) *document.ExtractedDocument {
	t.Helper()
	doc, err := h.proc.ProcessDocument(context.Background(), &ProcessRequest{DocumentID: id, Source: pages(n)})
	require.NoError(t, err)
	return doc
}

func TestProcessPage(t *testing.T) {
	_, ok := ProcessPage(1, nil)
	assert.False(t, ok)

	only, ok := ProcessPage(2, []document.PageAnnotation{{Text: "ﬁle"}})
	require.True(t, ok)
	assert.Equal(t, "file", only.FullText, "full text is NFKC normalized")
	assert.Equal(t, 0.0, only.Confidence)
	assert.Empty(t, only.Blocks)

	res, ok := ProcessPage(3, textPage("x", 0.98, 0.99).annotations)
	require.True(t, ok)
	assert.Equal(t, 0.985, res.Confidence)
	require.Len(t, res.Blocks, 2)
	assert.Equal(t, 3, res.Blocks[0].PageNumber)
}

func TestSinglePageHighConfidenceCompletes(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{1: textPage("Contract Number: SAAS-2025-001", 0.98, 0.99)})

	doc := h.process(t, "doc-a", 1)

	assert.Equal(t, document.StatusCompleted, doc.Status)
	assert.Equal(t, 0.985, doc.ConfidenceScore)
	assert.Equal(t, "SAAS-2025-001", doc.Structured.ContractNumber)
	assert.Equal(t, 1, doc.Metrics.ProcessedPages)
	assert.Equal(t, 0, doc.Metrics.RemainingPages)
	assert.False(t, doc.Metrics.ContinuationScheduled)
	assert.Empty(t, h.scheduled)

	entry, err := h.proc.GetCached(context.Background(), "doc-a")
	require.NoError(t, err)
	assert.Same(t, entry.Document, entry.Latest())
	assert.Equal(t, doc.ConfidenceScore, entry.Document.ConfidenceScore)
}

func TestSinglePageLowConfidenceNeedsValidation(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{1: textPage("some text", 0.80)})

	doc := h.process(t, "doc-b", 1)

	assert.Equal(t, document.StatusValidationRequired, doc.Status)
	assert.Equal(t, 0.8, doc.ConfidenceScore)
}

func TestNoTextMarksDocumentFailed(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{
		1: {err: fmt.Errorf("recognizer down")},
		2: {annotations: nil},
	})

	doc := h.process(t, "doc-f", 2)

	assert.Equal(t, document.StatusFailed, doc.Status)
	assert.Equal(t, 0.0, doc.ConfidenceScore)
	assert.Equal(t, []int{1, 2}, doc.Metrics.FailedPages)
	assert.Equal(t, string(apperrors.ErrorNoTextExtracted), doc.ErrorDetails["error_code"])
}

func TestFailedPageIsSkipped(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{
		1: textPage("page one", 0.96),
		2: {err: fmt.Errorf("transient")},
		3: textPage("page three", 0.98),
	})

	doc := h.process(t, "doc-skip", 3)

	assert.Equal(t, []int{2}, doc.Metrics.FailedPages)
	assert.Len(t, doc.Pages, 2)
	assert.Equal(t, 0.97, doc.ConfidenceScore)
	assert.Equal(t, document.StatusCompleted, doc.Status)
	assert.Equal(t, "page one\n\npage three", doc.FullText)
}

func TestPartiesDeduplicatedAcrossPages(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{
		1: textPage(acmeProvider, 0.9),
		2: textPage(acmeProvider, 0.9),
	})

	doc := h.process(t, "doc-dedup", 2)

	require.Len(t, doc.Structured.Parties, 1)
	assert.Equal(t, document.Party{
		Name:        "Acme Inc.",
		Role:        "provider",
		LegalEntity: "Delaware corporation",
		Address:     "1 Main St.",
	}, doc.Structured.Parties[0])
}

func TestBudgetSchedulesContinuation(t *testing.T) {
	script := map[int]scriptedPage{
		1: textPage("Contract Number: SAAS-2025-001", 0.99),
		2: textPage("page two", 0.97),
		3: textPage(acmeProvider, 0.80),
	}
	for n, page := range script {
		page.takes = 3 * time.Second
		script[n] = page
	}
	h := newHarness(t, script)
	ctx := context.Background()

	doc := h.process(t, "doc-budget", 3)

	assert.Equal(t, 3, doc.Metrics.TotalPages)
	assert.Equal(t, 2, doc.Metrics.ProcessedPages)
	assert.Equal(t, 1, doc.Metrics.RemainingPages)
	assert.True(t, doc.Metrics.ContinuationScheduled)
	assert.Equal(t, int64(5000), doc.Metrics.ProcessingTimeMs)
	assert.Equal(t, int64(6000), doc.Metrics.APILatencyMs)
	assert.Equal(t, 0.98, doc.ConfidenceScore)

	require.Len(t, h.scheduled, 1)
	cont := h.scheduled[0]
	require.Len(t, cont.Pages, 1)
	assert.Equal(t, 3, cont.Pages[0].Number)

	_, err := h.proc.ValidateDocument(ctx, "doc-budget", document.CorrectedData{Blocks: doc.Blocks}, "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorNotFinalized))
	assert.True(t, apperrors.IsRetryable(err))

	require.NoError(t, h.proc.Continue(ctx, cont))

	entry, err := h.proc.GetCached(ctx, "doc-budget")
	require.NoError(t, err)
	merged := entry.Document
	assert.Equal(t, 0, merged.Metrics.RemainingPages)
	assert.Equal(t, 3, merged.Metrics.ProcessedPages)
	assert.Len(t, merged.Pages, 3)
	assert.Equal(t, 0.92, merged.ConfidenceScore)
	assert.Equal(t, document.StatusValidationRequired, merged.Status)
	assert.Equal(t, "SAAS-2025-001", merged.Structured.ContractNumber)
	require.Len(t, merged.Structured.Parties, 1)
	assert.Equal(t, int64(3000), merged.Metrics.ContinuationTimeMs)
	assert.Equal(t, doc.CreatedAt, merged.CreatedAt)

	require.NoError(t, h.proc.Continue(ctx, cont))
	again, err := h.proc.GetCached(ctx, "doc-budget")
	require.NoError(t, err)
	assert.Equal(t, entry.Version, again.Version, "a repeated continuation is not merged twice")
}

func TestTightBudgetStillProcessesFirstPage(t *testing.T) {
	slow := textPage("only page processed", 0.99)
	slow.takes = 10 * time.Second
	h := newHarness(t, map[int]scriptedPage{1: slow, 2: textPage("later", 0.99)})

	doc := h.process(t, "doc-tight", 2)

	assert.Equal(t, 1, doc.Metrics.ProcessedPages)
	assert.Equal(t, 1, doc.Metrics.RemainingPages)
	assert.Equal(t, int64(5000), doc.Metrics.ProcessingTimeMs)
	assert.Equal(t, document.StatusCompleted, doc.Status)
	require.Len(t, h.scheduled, 1)
}

func TestFailedFirstPageWithRemainingPagesIsProcessing(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{
		1: {err: fmt.Errorf("bad scan"), takes: 6 * time.Second},
		2: textPage("page two", 0.96),
	})
	ctx := context.Background()

	doc := h.process(t, "doc-pending", 2)
	assert.Equal(t, document.StatusProcessing, doc.Status)

	require.Len(t, h.scheduled, 1)
	require.NoError(t, h.proc.Continue(ctx, h.scheduled[0]))

	entry, err := h.proc.GetCached(ctx, "doc-pending")
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, entry.Document.Status)
	assert.Equal(t, []int{1}, entry.Document.Metrics.FailedPages)
}

func TestValidateDocumentPenalizesChanges(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{1: textPage("Contract Number: SAAS-2025-001", 0.9, 0.9, 0.9)})
	ctx := context.Background()
	doc := h.process(t, "doc-e", 1)
	require.Equal(t, 0.9, doc.ConfidenceScore)

	corrected := append([]document.PageAnnotation(nil), doc.Blocks...)
	corrected[0].Confidence = 1
	corrected[1].Bounds.Right = 99

	res, err := h.proc.ValidateDocument(ctx, "doc-e", document.CorrectedData{Structured: doc.Structured, Blocks: corrected}, "checked")
	require.NoError(t, err)
	assert.Len(t, res.Metadata.Changes.Modified, 2)
	assert.Equal(t, 0.8, res.Metadata.ValidationConfidence)
	assert.Equal(t, document.StatusValidationRequired, res.Status)

	entry, err := h.proc.GetCached(ctx, "doc-e")
	require.NoError(t, err)
	latest, ok := entry.Latest().(*document.ValidationResult)
	require.True(t, ok)
	assert.Equal(t, res.ID, latest.ID)
	assert.Equal(t, 0.9, entry.Document.ConfidenceScore, "original extraction is kept")
}

func TestValidateDocumentIdentity(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{1: textPage("text", 0.97, 0.99)})
	doc := h.process(t, "doc-id", 1)

	res, err := h.proc.ValidateDocument(context.Background(), "doc-id", document.CorrectedData{Structured: doc.Structured, Blocks: doc.Blocks}, "")
	require.NoError(t, err)

	assert.True(t, res.Metadata.Changes.Empty())
	assert.Equal(t, doc.ConfidenceScore, res.Metadata.ValidationConfidence)
	assert.Equal(t, document.StatusValidated, res.Status)
}

func TestValidateDocumentMissing(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.proc.ValidateDocument(context.Background(), "nope", document.CorrectedData{}, "")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorValidationFailed))

	_, err = h.proc.GetCached(context.Background(), "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestProcessBatch(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{1: textPage("text", 0.99)})

	docs, err := h.proc.ProcessBatch(context.Background(), []*ProcessRequest{
		{DocumentID: "batch-1", Source: pages(1)},
		{DocumentID: "", Source: pages(1)},
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, document.StatusCompleted, docs[0].Status)
	assert.Equal(t, document.StatusFailed, docs[1].Status)
	assert.Equal(t, string(apperrors.ErrorInvalidRequest), docs[1].ErrorDetails["error_code"])

	tooMany := make([]*ProcessRequest, DefaultMaxBatchSize+1)
	_, err = h.proc.ProcessBatch(context.Background(), tooMany)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorInvalidRequest))
}

func TestScheduleFailureIsRetryable(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{1: {annotations: textPage("a", 0.9).annotations, takes: 6 * time.Second}})
	h.proc.scheduler = SchedulerFunc(func(ctx context.Context, req *ContinuationRequest) error {
		return fmt.Errorf("queue unavailable")
	})
	ctx := context.Background()

	_, err := h.proc.ProcessDocument(ctx, &ProcessRequest{DocumentID: "doc-s", Source: pages(2)})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorScheduleFailed))
	assert.True(t, apperrors.IsRetryable(err))

	entry, err := h.proc.GetCached(ctx, "doc-s")
	require.NoError(t, err)
	doc := entry.Document
	assert.True(t, doc.Finalized(), "an unscheduled document is not left pending")
	assert.Equal(t, 0, doc.Metrics.RemainingPages)
	assert.Equal(t, 2, doc.Metrics.ProcessedPages)
	assert.Equal(t, []int{2}, doc.Metrics.FailedPages)
	assert.False(t, doc.Metrics.ContinuationScheduled)
	assert.Equal(t, document.StatusValidationRequired, doc.Status)
	assert.Equal(t, string(apperrors.ErrorScheduleFailed), doc.ErrorDetails["error_code"])

	_, err = h.proc.ValidateDocument(ctx, "doc-s", document.CorrectedData{Structured: doc.Structured, Blocks: doc.Blocks}, "")
	assert.NoError(t, err)
}

func TestContinueWithCancelledContextFinalizes(t *testing.T) {
	slow := textPage("first page", 0.99)
	slow.takes = 6 * time.Second
	h := newHarness(t, map[int]scriptedPage{1: slow, 2: textPage("two", 0.99), 3: textPage("three", 0.99)})

	h.process(t, "doc-cancel", 3)
	require.Len(t, h.scheduled, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.proc.Continue(ctx, h.scheduled[0])
	assert.True(t, apperrors.HasCode(err, apperrors.ErrorProcessingTimeout))

	entry, err := h.proc.GetCached(context.Background(), "doc-cancel")
	require.NoError(t, err)
	doc := entry.Document
	assert.True(t, doc.Finalized())
	assert.Equal(t, 3, doc.Metrics.ProcessedPages)
	assert.Equal(t, []int{2, 3}, doc.Metrics.FailedPages)
	assert.Len(t, doc.Pages, 1)
	assert.Equal(t, document.StatusCompleted, doc.Status)
	assert.Equal(t, string(apperrors.ErrorProcessingTimeout), doc.ErrorDetails["error_code"])
}

func TestAbandonFinalizesPendingDocument(t *testing.T) {
	h := newHarness(t, map[int]scriptedPage{
		1: {err: fmt.Errorf("bad scan"), takes: 6 * time.Second},
		2: textPage("page two", 0.96),
	})
	ctx := context.Background()

	doc := h.process(t, "doc-abandon", 2)
	require.Equal(t, document.StatusProcessing, doc.Status)
	require.Len(t, h.scheduled, 1)

	require.NoError(t, h.proc.Abandon(ctx, h.scheduled[0], fmt.Errorf("retries exhausted")))

	entry, err := h.proc.GetCached(ctx, "doc-abandon")
	require.NoError(t, err)
	assert.True(t, entry.Document.Finalized())
	assert.Equal(t, document.StatusFailed, entry.Document.Status)
	assert.Equal(t, []int{1, 2}, entry.Document.Metrics.FailedPages)
	assert.Equal(t, string(apperrors.ErrorNoTextExtracted), entry.Document.ErrorDetails["error_code"])

	// A late delivery of the same continuation does not reopen the document.
	require.NoError(t, h.proc.Continue(ctx, h.scheduled[0]))
	again, err := h.proc.GetCached(ctx, "doc-abandon")
	require.NoError(t, err)
	assert.Equal(t, entry.Version, again.Version)

	assert.NoError(t, h.proc.Abandon(ctx, &ContinuationRequest{DocumentID: "gone"}, fmt.Errorf("expired")))
}

func TestContinuationFromEarlierRunIsIgnored(t *testing.T) {
	slow := textPage("first page", 0.99)
	slow.takes = 6 * time.Second
	h := newHarness(t, map[int]scriptedPage{1: slow, 2: textPage("two", 0.5)})
	ctx := context.Background()

	h.process(t, "doc-rerun", 2)
	h.process(t, "doc-rerun", 2)
	require.Len(t, h.scheduled, 2)
	stale, current := h.scheduled[0], h.scheduled[1]
	require.NotEmpty(t, stale.RunID)
	require.NotEqual(t, stale.RunID, current.RunID)

	before, err := h.proc.GetCached(ctx, "doc-rerun")
	require.NoError(t, err)
	assert.Equal(t, current.RunID, before.RunID)

	require.NoError(t, h.proc.Continue(ctx, stale))
	require.NoError(t, h.proc.Abandon(ctx, stale, fmt.Errorf("stale")))
	after, err := h.proc.GetCached(ctx, "doc-rerun")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "an earlier run's continuation does not merge")
	assert.False(t, after.Document.Finalized())

	require.NoError(t, h.proc.Continue(ctx, current))
	merged, err := h.proc.GetCached(ctx, "doc-rerun")
	require.NoError(t, err)
	assert.True(t, merged.Document.Finalized())
	assert.Len(t, merged.Document.Pages, 2)
	assert.Equal(t, current.RunID, merged.RunID)
}

func TestAggregateIsDeterministic(t *testing.T) {
	p1, _ := ProcessPage(2, textPage("second", 0.9).annotations)
	p0, _ := ProcessPage(1, textPage("first", 0.9).annotations)

	a := Aggregate("doc", []document.PageResult{p1, p0})
	b := Aggregate("doc", []document.PageResult{p0, p1})

	assert.Equal(t, a, b)
	assert.Equal(t, "first\n\nsecond", a.FullText)
	assert.Equal(t, 1, a.Blocks[0].PageNumber)
	assert.Equal(t, len("first\n\nsecond"), a.Metrics.DocumentSize)
}

func TestScorerBounds(t *testing.T) {
	s := Scorer{}
	doc := &document.ExtractedDocument{Pages: []document.PageResult{{Confidence: 1.4}, {Confidence: 1.2}}}
	s.Apply(doc)
	assert.Equal(t, 1.0, doc.ConfidenceScore)
	assert.Equal(t, document.StatusCompleted, doc.Status)

	empty := &document.ExtractedDocument{}
	s.Apply(empty)
	assert.Equal(t, document.StatusFailed, empty.Status)
}
