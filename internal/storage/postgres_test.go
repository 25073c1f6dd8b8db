package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

func TestSanitizeConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.9632000000000001, 0.9632},
		{-0.2, 0},
		{1.7, 1},
		{0.98765, 0.9877},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeConfidence(tt.in))
	}
}

func TestSanitizeJSONForPostgres(t *testing.T) {
	raw, err := json.Marshal(map[string]string{"text": "a\x00b\x07c"})
	require.NoError(t, err)

	assert.Equal(t, `{"text":"ab c"}`, string(sanitizeJSONForPostgres(raw)))
}

func TestNewExtractionRow(t *testing.T) {
	created := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	doc := &document.ExtractedDocument{
		DocumentID:      "doc-1",
		Status:          document.StatusValidationRequired,
		ConfidenceScore: 0.91234,
		Structured:      document.StructuredFields{ContractNumber: "SAAS-2025-001"},
		Metrics: document.PerformanceMetrics{
			TotalPages:         4,
			ProcessedPages:     4,
			FailedPages:        []int{2},
			ProcessingTimeMs:   5000,
			ContinuationTimeMs: 1200,
		},
		CreatedAt: created,
		UpdatedAt: created,
	}

	row, err := newExtractionRow(doc)
	require.NoError(t, err)

	assert.Equal(t, "VALIDATION_REQUIRED", row.Status)
	assert.Equal(t, 0.9123, row.Confidence)
	assert.Equal(t, []int64{2}, row.FailedPages)
	assert.Equal(t, int64(6200), row.ProcessingTimeMs)
	assert.Equal(t, "SAAS-2025-001", row.ContractNumber)
	assert.JSONEq(t, `{"contract_number":"SAAS-2025-001"}`, string(row.Structured))
	assert.Nil(t, row.ErrorDetails)
	assert.Nil(t, nullableJSON(row.ErrorDetails))
}
