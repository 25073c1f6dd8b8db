package report

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

func sampleDocs() []*document.ExtractedDocument {
	total := 50000.0
	return []*document.ExtractedDocument{
		{
			DocumentID:      "doc-1",
			Status:          document.StatusCompleted,
			ConfidenceScore: 0.985,
			Structured: document.StructuredFields{
				ContractNumber: "SAAS-2025-001",
				Parties: []document.Party{
					{Name: "Acme Corp", Role: "Provider"},
					{Name: "Globex Inc", Role: "Customer"},
				},
				EffectiveDate: "January 15, 2025",
				TotalValue:    &total,
			},
			Pages: []document.PageResult{
				{PageNumber: 1, FullText: "Contract   Number:\nSAAS-2025-001", Confidence: 0.98},
				{PageNumber: 2, FullText: "Payment due in 30 days", Confidence: 0.99},
			},
			Metrics: document.PerformanceMetrics{TotalPages: 3, ProcessedPages: 2, FailedPages: []int{3}, ProcessingTimeMs: 4200},
		},
		nil,
		{DocumentID: "doc-2", Status: document.StatusFailed},
	}
}

func TestXLSX(t *testing.T) {
	data, err := XLSX(sampleDocs())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{documentsSheet, pagesSheet}, f.GetSheetList())

	cell := func(sheet, ref string) string {
		v, err := f.GetCellValue(sheet, ref)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "Document ID", cell(documentsSheet, "A1"))
	assert.Equal(t, "doc-1", cell(documentsSheet, "A2"))
	assert.Equal(t, "COMPLETED", cell(documentsSheet, "B2"))
	assert.Equal(t, "SAAS-2025-001", cell(documentsSheet, "D2"))
	assert.Equal(t, "Acme Corp (Provider); Globex Inc (Customer)", cell(documentsSheet, "E2"))
	assert.Equal(t, "2/3", cell(documentsSheet, "J2"))
	assert.Equal(t, "3", cell(documentsSheet, "K2"))
	assert.Equal(t, "doc-2", cell(documentsSheet, "A3"))
	assert.Equal(t, "", cell(documentsSheet, "A4"))

	assert.Equal(t, "Contract Number: SAAS-2025-001", cell(pagesSheet, "E2"))
	assert.Equal(t, "2", cell(pagesSheet, "B3"))
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	require.NoError(t, WriteXLSX(path, sampleDocs()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(documentsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	got := truncate(strings.Repeat("é", 20), 5)
	assert.Equal(t, "éééé…", got)
}
