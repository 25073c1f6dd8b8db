package processor

import (
	"sort"
	"strings"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
	"github.com/adverant/nexus/contract-ocr-worker/internal/parser"
)

const pageSeparator = "\n\n"

// Aggregate merges page results into one document. Status and confidence are
// left for the Scorer. Pages are ordered by page number first.
func Aggregate(documentID string, pages []document.PageResult) *document.ExtractedDocument {
	ordered := make([]document.PageResult, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].PageNumber < ordered[j].PageNumber
	})

	doc := &document.ExtractedDocument{
		DocumentID: documentID,
		Pages:      ordered,
	}

	texts := make([]string, 0, len(ordered))
	var pageItems []document.Item
	seenParties := make(map[string]bool)
	s := &doc.Structured

	for _, page := range ordered {
		texts = append(texts, page.FullText)
		for _, b := range page.Blocks {
			b.PageNumber = page.PageNumber
			doc.Blocks = append(doc.Blocks, b)
		}

		fields := parser.Parse(page.FullText)
		if s.ContractNumber == "" {
			s.ContractNumber = fields.ContractNumber
		}
		if s.EffectiveDate == "" {
			s.EffectiveDate = fields.EffectiveDate
		}
		if s.ExpirationDate == "" {
			s.ExpirationDate = fields.ExpirationDate
		}
		if s.TotalValue == nil {
			s.TotalValue = fields.TotalValue
		}
		for _, party := range fields.Parties {
			if seenParties[party.Key()] {
				continue
			}
			seenParties[party.Key()] = true
			s.Parties = append(s.Parties, party)
		}
		s.PaymentTerms = append(s.PaymentTerms, fields.PaymentTerms...)
		pageItems = append(pageItems, fields.Items...)
	}

	doc.FullText = strings.Join(texts, pageSeparator)
	if items := parser.ParseItems(doc.FullText); len(items) > 0 {
		s.Items = items
	} else {
		s.Items = pageItems
	}
	doc.Metrics.DocumentSize = len(doc.FullText)
	return doc
}
