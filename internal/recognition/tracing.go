package recognition

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

const instrumentationName = "github.com/adverant/nexus/contract-ocr-worker/recognition"

type traced struct {
	backend string
	next    Recognizer
}

// WithTracing starts a span per recognition call.
func WithTracing(backend string, next Recognizer) Recognizer {
	return &traced{backend: backend, next: next}
}

func (t *traced) Recognize(ctx context.Context, image document.PageImage, opts document.Options) ([]document.PageAnnotation, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "recognize "+t.backend,
		trace.WithAttributes(
			attribute.String("ocr.backend", t.backend),
			attribute.Int("ocr.page", image.Number),
			attribute.Int("ocr.image_bytes", len(image.Data)),
		))
	defer span.End()

	annotations, err := t.next.Recognize(ctx, image, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("ocr.annotations", len(annotations)))
	return annotations, nil
}
