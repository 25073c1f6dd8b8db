/**
 * Text Recognition Adapter
 *
 * A Recognizer turns one page image into annotations. By convention the first
 * annotation carries the full page text; the rest are discrete blocks with
 * bounding boxes. Backends are wrapped by decorators (retry, rate limit,
 * tracing) rather than embedding that behaviour themselves.
 */

package recognition

import (
	"context"
	"fmt"
	"strings"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// Recognizer performs text recognition on a single page image.
type Recognizer interface {
	Recognize(ctx context.Context, image document.PageImage, opts document.Options) ([]document.PageAnnotation, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, image document.PageImage, opts document.Options) ([]document.PageAnnotation, error)

func (f RecognizerFunc) Recognize(ctx context.Context, image document.PageImage, opts document.Options) ([]document.PageAnnotation, error) {
	return f(ctx, image, opts)
}

// Config selects and tunes a backend.
type Config struct {
	Backend        string
	Tesseract      TesseractConfig
	DocumentAI     DocumentAIConfig
	RatePerSecond  float64
	RateBurst      int
	Retry          RetryPolicy
	DisableTracing bool
}

// New builds the configured backend wrapped as tracing -> rate limit -> retry.
// The returned close function releases backend resources.
func New(ctx context.Context, cfg Config, logger Logger) (Recognizer, func() error, error) {
	var (
		backend Recognizer
		closeFn = func() error { return nil }
	)

	switch strings.ToLower(cfg.Backend) {
	case "", "tesseract":
		backend = NewTesseractRecognizer(cfg.Tesseract)
	case "documentai":
		d, err := NewDocumentAIRecognizer(ctx, cfg.DocumentAI)
		if err != nil {
			return nil, nil, err
		}
		backend = d
		closeFn = d.Close
	default:
		return nil, nil, fmt.Errorf("unknown recognizer backend %q", cfg.Backend)
	}

	name := cfg.Backend
	if name == "" {
		name = "tesseract"
	}

	var r Recognizer = backend
	if !cfg.DisableTracing {
		r = WithTracing(name, r)
	}
	r = WithRateLimit(r, cfg.RatePerSecond, cfg.RateBurst)
	r = WithRetry(r, cfg.Retry, logger)

	return r, closeFn, nil
}

// Logger is the subset of logging.Logger the decorators use.
type Logger interface {
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}
