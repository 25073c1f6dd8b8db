/**
 * Result Cache
 *
 * Holds the latest extraction (and, once corrected, validation) result per
 * document id. Every write bumps Version so a writer that read an older
 * entry can detect that someone else got there first.
 */

package cache

import (
	"context"
	"time"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
	apperrors "github.com/adverant/nexus/contract-ocr-worker/internal/errors"
)

// Entry is the cached state of one document.
type Entry struct {
	DocumentID string                      `json:"document_id"`
	Document   *document.ExtractedDocument `json:"document"`
	Validation *document.ValidationResult  `json:"validation,omitempty"`
	// RunID names the processing run that wrote the document; continuations
	// carrying another run's id are stale.
	RunID      string                      `json:"run_id,omitempty"`
	Version    int64                       `json:"version"`
	StoredAt   time.Time                   `json:"stored_at"`
}

// Latest returns the validation result if one supersedes the extraction.
func (e *Entry) Latest() interface{} {
	if e.Validation != nil {
		return e.Validation
	}
	return e.Document
}

// Clone returns a deep copy so callers never share state with the store.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Document = e.Document.Clone()
	out.Validation = e.Validation.Clone()
	return &out
}

// Store is a key-value store of cache entries.
//
// Put overwrites unconditionally. CompareAndSwap writes only if the stored
// version equals expected (0 meaning "absent"). Both assign Version and
// StoredAt on the entry they are given.
type Store interface {
	Get(ctx context.Context, documentID string) (*Entry, error)
	Put(ctx context.Context, entry *Entry) error
	CompareAndSwap(ctx context.Context, expected int64, entry *Entry) (bool, error)
}

// ErrNotFound is returned by Get when no entry exists.
var ErrNotFound = apperrors.ErrNotFound
