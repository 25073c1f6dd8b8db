package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/adverant/nexus/contract-ocr-worker/internal/processor"
)

var _ processor.Metrics = (*Metrics)(nil)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewMetricsWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRequest(ctx, "COMPLETED", 1500*time.Millisecond)
	m.RecordRequest(ctx, "COMPLETED", 500*time.Millisecond)
	m.RecordRequest(ctx, "FAILED", time.Second)
	m.RecordConfidence(ctx, 0.97)
	m.RecordPage(ctx, processor.PageRecognized)
	m.RecordPage(ctx, processor.PageRecognized)
	m.RecordPage(ctx, processor.PageDeferred)

	got := collect(t, reader)

	t.Run("requests by status", func(t *testing.T) {
		sum, ok := got["ocr_requests_total"].Data.(metricdata.Sum[int64])
		require.True(t, ok)

		counts := map[string]int64{}
		for _, dp := range sum.DataPoints {
			status, _ := dp.Attributes.Value(attribute.Key("status"))
			counts[status.AsString()] = dp.Value
		}
		assert.Equal(t, map[string]int64{"COMPLETED": 2, "FAILED": 1}, counts)
	})

	t.Run("confidence buckets", func(t *testing.T) {
		hist, ok := got["ocr_confidence_score"].Data.(metricdata.Histogram[float64])
		require.True(t, ok)
		require.Len(t, hist.DataPoints, 1)

		dp := hist.DataPoints[0]
		assert.Equal(t, confidenceBuckets, dp.Bounds)
		assert.Equal(t, uint64(1), dp.Count)
	})

	t.Run("processing seconds", func(t *testing.T) {
		hist, ok := got["ocr_processing_seconds"].Data.(metricdata.Histogram[float64])
		require.True(t, ok)

		var total float64
		for _, dp := range hist.DataPoints {
			total += dp.Sum
		}
		assert.InDelta(t, 3.0, total, 1e-9)
	})

	t.Run("pages by outcome", func(t *testing.T) {
		sum, ok := got["ocr_pages_total"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		assert.Len(t, sum.DataPoints, 2)
	})
}
