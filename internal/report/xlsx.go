package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

const (
	documentsSheet = "Documents"
	pagesSheet     = "Pages"

	maxPreview = 140
)

var documentHeaders = []string{
	"Document ID",
	"Status",
	"Confidence",
	"Contract Number",
	"Parties",
	"Effective Date",
	"Expiration Date",
	"Total Value",
	"Payment Terms",
	"Pages (processed/total)",
	"Failed Pages",
	"Processing Time (ms)",
}

var pageHeaders = []string{
	"Document ID",
	"Page",
	"Confidence",
	"Blocks",
	"Text",
}

// XLSX renders docs as a workbook with one row per document and one row per page.
func XLSX(docs []*document.ExtractedDocument) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", documentsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(pagesSheet); err != nil {
		return nil, err
	}

	writeRow(f, documentsSheet, 1, toCells(documentHeaders))
	writeRow(f, pagesSheet, 1, toCells(pageHeaders))

	docRow, pageRow := 2, 2
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		writeRow(f, documentsSheet, docRow, documentCells(doc))
		docRow++

		for _, p := range doc.Pages {
			writeRow(f, pagesSheet, pageRow, []any{
				doc.DocumentID,
				p.PageNumber,
				p.Confidence,
				len(p.Blocks),
				truncate(strings.Join(strings.Fields(p.FullText), " "), maxPreview),
			})
			pageRow++
		}
	}

	_ = f.SetColWidth(documentsSheet, "A", "A", 24)
	_ = f.SetColWidth(documentsSheet, "D", "D", 20)
	_ = f.SetColWidth(documentsSheet, "E", "E", 40)
	_ = f.SetColWidth(documentsSheet, "I", "I", 40)
	_ = f.SetColWidth(pagesSheet, "A", "A", 24)
	_ = f.SetColWidth(pagesSheet, "E", "E", 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteXLSX writes the workbook for docs to path.
func WriteXLSX(path string, docs []*document.ExtractedDocument) error {
	data, err := XLSX(docs)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func documentCells(doc *document.ExtractedDocument) []any {
	s := doc.Structured

	parties := make([]string, 0, len(s.Parties))
	for _, p := range s.Parties {
		parties = append(parties, fmt.Sprintf("%s (%s)", p.Name, p.Role))
	}

	var total any = ""
	if s.TotalValue != nil {
		total = *s.TotalValue
	}

	failed := make([]string, 0, len(doc.Metrics.FailedPages))
	for _, n := range doc.Metrics.FailedPages {
		failed = append(failed, fmt.Sprint(n))
	}

	return []any{
		doc.DocumentID,
		string(doc.Status),
		doc.ConfidenceScore,
		s.ContractNumber,
		strings.Join(parties, "; "),
		s.EffectiveDate,
		s.ExpirationDate,
		total,
		truncate(strings.Join(s.PaymentTerms, " | "), maxPreview),
		fmt.Sprintf("%d/%d", doc.Metrics.ProcessedPages, doc.Metrics.TotalPages),
		strings.Join(failed, ","),
		doc.Metrics.ProcessingTimeMs + doc.Metrics.ContinuationTimeMs,
	}
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
