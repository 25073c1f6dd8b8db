package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Error taxonomy for the contract OCR worker
 *
 * Page-level failures are recovered by the processor (skip and continue).
 * Whole-document and validation failures surface as ProcessingError values.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Recognition / extraction errors
	ErrorRecognitionFailed ErrorCode = "RECOGNITION_FAILED"
	ErrorNoTextExtracted   ErrorCode = "NO_TEXT_EXTRACTED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorInvalidRequest    ErrorCode = "INVALID_REQUEST"

	// Validation errors
	ErrorValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrorNotFinalized     ErrorCode = "NOT_FINALIZED"

	// Infrastructure errors
	ErrorCacheFailed    ErrorCode = "CACHE_FAILED"
	ErrorScheduleFailed ErrorCode = "SCHEDULE_FAILED"
	ErrorStorageFailed  ErrorCode = "STORAGE_FAILED"
)

// ErrNotFound is returned when no cache entry exists for a document id.
var ErrNotFound = stderrors.New("not found")

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code       ErrorCode
	Message    string
	DocumentID string
	Timestamp  time.Time
	Details    map[string]interface{}
	Cause      error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller may retry the same operation later.
func (e *ProcessingError) Retryable() bool {
	switch e.Code {
	case ErrorNotFinalized, ErrorCacheFailed, ErrorScheduleFailed:
		return true
	}
	return false
}

// Factory functions for common errors

// NewRecognitionError wraps the final failure of a page after all attempts.
func NewRecognitionError(documentID string, page int, attempts int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorRecognitionFailed,
		Message:    fmt.Sprintf("text recognition failed for page %d after %d attempts", page, attempts),
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"page_number": page,
			"attempts":    attempts,
		},
		Cause: cause,
	}
}

func NewNoTextExtractedError(documentID string, totalPages int, failedPages []int) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorNoTextExtracted,
		Message:    fmt.Sprintf("no text extracted from any of %d pages", totalPages),
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"total_pages":  totalPages,
			"failed_pages": failedPages,
		},
	}
}

func NewProcessingTimeoutError(documentID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorProcessingTimeout,
		Message:    fmt.Sprintf("Processing timed out after %v", duration),
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewInvalidRequestError(documentID string, reason string) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorInvalidRequest,
		Message:    reason,
		DocumentID: documentID,
		Timestamp:  time.Now(),
	}
}

// NewValidationError covers both a missing cache entry and structurally invalid corrections.
func NewValidationError(documentID string, reason string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorValidationFailed,
		Message:    reason,
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

func NewNotFinalizedError(documentID string, remainingPages int) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorNotFinalized,
		Message:    "document still has pages pending continuation",
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Details: map[string]interface{}{
			"remaining_pages": remainingPages,
		},
	}
}

func NewCacheFailedError(documentID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorCacheFailed,
		Message:    "Failed to access result cache",
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

func NewScheduleFailedError(documentID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorScheduleFailed,
		Message:    "Failed to schedule continuation",
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

func NewStorageFailedError(documentID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:       ErrorStorageFailed,
		Message:    "Failed to store processing results",
		DocumentID: documentID,
		Timestamp:  time.Now(),
		Cause:      cause,
	}
}

// ToMap converts error to map for result payloads and database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}

// HasCode reports whether err (or anything it wraps) is a ProcessingError with code.
func HasCode(err error, code ErrorCode) bool {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsRetryable reports whether err is a ProcessingError the caller may retry.
func IsRetryable(err error) bool {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}
