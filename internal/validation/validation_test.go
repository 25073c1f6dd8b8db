package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
	apperrors "github.com/adverant/nexus/contract-ocr-worker/internal/errors"
)

func block(text string, conf float64) document.PageAnnotation {
	return document.PageAnnotation{
		Text:       text,
		Confidence: conf,
		Bounds:     document.Bounds{Left: 1, Top: 2, Right: 3, Bottom: 4},
		PageNumber: 1,
	}
}

func sampleDoc() *document.ExtractedDocument {
	return &document.ExtractedDocument{
		DocumentID:      "doc-1",
		Blocks:          []document.PageAnnotation{block("Contract", 0.9), block("SAAS-2025-001", 0.9), block("Total", 0.9)},
		Structured:      document.StructuredFields{ContractNumber: "SAAS-2025-001"},
		ConfidenceScore: 0.90,
		Status:          document.StatusValidationRequired,
	}
}

func testEngine() *Engine {
	e := NewEngine(0.95)
	e.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	e.newID = func() string { return "val-1" }
	return e
}

func TestDiffIdentity(t *testing.T) {
	doc := sampleDoc()
	changes := Diff(doc.Blocks, append([]document.PageAnnotation(nil), doc.Blocks...))

	assert.True(t, changes.Empty())
	assert.Equal(t, 0.9, Confidence(0.9, changes))
}

func TestDiffClassifiesChanges(t *testing.T) {
	original := []document.PageAnnotation{block("a", 0.9), block("b", 0.9), block("c", 0.9)}
	corrected := []document.PageAnnotation{block("a", 0.9), block("b", 1.0), block("d", 1.0)}

	changes := Diff(original, corrected)

	require.Len(t, changes.Added, 1)
	assert.Equal(t, "d", changes.Added[0].Text)
	require.Len(t, changes.Modified, 1)
	assert.Equal(t, 0.9, changes.Modified[0].Original.Confidence)
	assert.Equal(t, 1.0, changes.Modified[0].Corrected.Confidence)
	require.Len(t, changes.Removed, 1)
	assert.Equal(t, "c", changes.Removed[0].Text)
}

func TestDiffDuplicateTextUsesLastOccurrence(t *testing.T) {
	original := []document.PageAnnotation{block("x", 0.5), block("x", 0.9)}
	corrected := []document.PageAnnotation{block("x", 0.9)}

	assert.True(t, Diff(original, corrected).Empty())
}

func TestConfidenceClamps(t *testing.T) {
	many := document.Changes{Added: make([]document.PageAnnotation, 30)}
	assert.Equal(t, 0.0, Confidence(0.9, many))
	assert.Equal(t, 1.0, Confidence(1.2, document.Changes{}))
}

func TestValidateTwoModifiedBlocks(t *testing.T) {
	doc := sampleDoc()
	corrected := document.CorrectedData{
		Structured: doc.Structured,
		Blocks:     []document.PageAnnotation{block("Contract", 0.99), block("SAAS-2025-001", 0.99), block("Total", 0.9)},
	}

	res, err := testEngine().Validate(doc, corrected, "fixed confidences")
	require.NoError(t, err)

	assert.Len(t, res.Metadata.Changes.Modified, 2)
	assert.Equal(t, 0.8, res.Metadata.ValidationConfidence)
	assert.Equal(t, 0.9, res.Metadata.OriginalConfidence)
	assert.Equal(t, document.StatusValidationRequired, res.Status)
	assert.Equal(t, "val-1", res.ID)
	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Empty(t, res.Metadata.ModifiedFields)
}

func TestValidateUnchangedHighConfidenceIsValidated(t *testing.T) {
	doc := sampleDoc()
	doc.ConfidenceScore = 0.97
	doc.Status = document.StatusCompleted

	res, err := testEngine().Validate(doc, document.CorrectedData{Structured: doc.Structured, Blocks: doc.Blocks}, "")
	require.NoError(t, err)

	assert.Equal(t, document.StatusValidated, res.Status)
	assert.Equal(t, 0.97, res.Metadata.ValidationConfidence)
}

func TestValidateRejects(t *testing.T) {
	e := testEngine()

	t.Run("missing original", func(t *testing.T) {
		_, err := e.Validate(nil, document.CorrectedData{}, "")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrorValidationFailed))
	})

	t.Run("long notes", func(t *testing.T) {
		_, err := e.Validate(sampleDoc(), document.CorrectedData{}, strings.Repeat("n", MaxNotesLength+1))
		assert.True(t, apperrors.HasCode(err, apperrors.ErrorValidationFailed))
	})

	t.Run("failed extraction", func(t *testing.T) {
		doc := sampleDoc()
		doc.Status = document.StatusFailed
		_, err := e.Validate(doc, document.CorrectedData{}, "")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrorValidationFailed))
	})

	t.Run("out of range block confidence", func(t *testing.T) {
		corrected := document.CorrectedData{Blocks: []document.PageAnnotation{block("a", 1.5)}}
		_, err := e.Validate(sampleDoc(), corrected, "")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrorValidationFailed))
	})
}

func TestModifiedFields(t *testing.T) {
	total := 100.0
	original := document.StructuredFields{ContractNumber: "A-1", PaymentTerms: []string{}}
	corrected := document.StructuredFields{ContractNumber: "A-2", TotalValue: &total}

	assert.Equal(t, []string{"contract_number", "total_value"}, ModifiedFields(original, corrected))
	assert.Empty(t, ModifiedFields(original, original))
}

func TestCheckCorrected(t *testing.T) {
	assert.NoError(t, CheckCorrected(document.CorrectedData{Blocks: []document.PageAnnotation{block("a", 0.5)}}))

	bad := document.CorrectedData{Structured: document.StructuredFields{
		Parties: []document.Party{{Name: "", Role: "provider"}},
	}}
	assert.Error(t, CheckCorrected(bad))
}
