package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var confidenceBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99, 1.0}

// Metrics holds the extraction instruments.
type Metrics struct {
	requests   metric.Int64Counter
	duration   metric.Float64Histogram
	confidence metric.Float64Histogram
	pages      metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(instrumentationName))
}

func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	requests, err := meter.Int64Counter("ocr_requests_total",
		metric.WithDescription("Documents processed, by resulting status"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("ocr_processing_seconds",
		metric.WithDescription("Wall-clock processing time per request"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	confidence, err := meter.Float64Histogram("ocr_confidence_score",
		metric.WithDescription("Document confidence after scoring"),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...))
	if err != nil {
		return nil, err
	}

	pages, err := meter.Int64Counter("ocr_pages_total",
		metric.WithDescription("Pages handled, by outcome"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		requests:   requests,
		duration:   duration,
		confidence: confidence,
		pages:      pages,
	}, nil
}

func (m *Metrics) RecordRequest(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) RecordConfidence(ctx context.Context, score float64) {
	m.confidence.Record(ctx, score)
}

func (m *Metrics) RecordPage(ctx context.Context, outcome string) {
	m.pages.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
