package validation

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
	apperrors "github.com/adverant/nexus/contract-ocr-worker/internal/errors"
)

// MaxNotesLength bounds the reviewer notes attached to a validation.
const MaxNotesLength = 1000

// Engine turns a reviewer's corrections into a ValidationResult.
type Engine struct {
	threshold float64
	now       func() time.Time
	newID     func() string
}

func NewEngine(threshold float64) *Engine {
	return &Engine{
		threshold: threshold,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Validate diffs corrected against the finalized original extraction.
func (e *Engine) Validate(original *document.ExtractedDocument, corrected document.CorrectedData, notes string) (*document.ValidationResult, error) {
	if original == nil {
		return nil, apperrors.NewValidationError("", "no cached extraction to validate", nil)
	}
	id := original.DocumentID

	if utf8.RuneCountInString(notes) > MaxNotesLength {
		return nil, apperrors.NewValidationError(id, fmt.Sprintf("notes exceed %d characters", MaxNotesLength), nil)
	}
	if original.Status == document.StatusFailed {
		return nil, apperrors.NewValidationError(id, "failed extractions cannot be validated", nil)
	}
	if err := CheckCorrected(corrected); err != nil {
		return nil, apperrors.NewValidationError(id, "corrected data is structurally invalid", err)
	}

	changes := Diff(original.Blocks, corrected.Blocks)
	confidence := Confidence(original.ConfidenceScore, changes)

	status := StatusFor(confidence, e.threshold)
	if _, err := document.Transition(original.Status, status); err != nil {
		return nil, apperrors.NewValidationError(id, "invalid status transition", err)
	}

	result := &document.ValidationResult{
		ID:         e.newID(),
		DocumentID: id,
		Status:     status,
		ValidatedData: document.CorrectedData{
			Structured: corrected.Structured.Clone(),
			Blocks:     append([]document.PageAnnotation(nil), corrected.Blocks...),
		},
		Notes: notes,
		Metadata: document.ValidationMetadata{
			Changes:              changes,
			ModifiedFields:       ModifiedFields(original.Structured, corrected.Structured),
			OriginalConfidence:   original.ConfidenceScore,
			ValidationConfidence: confidence,
			OriginalBlocks:       len(original.Blocks),
			CorrectedBlocks:      len(corrected.Blocks),
			Timestamp:            e.now(),
		},
	}
	return result, nil
}
