package processor

import (
	"golang.org/x/text/unicode/norm"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// ProcessPage turns one page's annotations into a PageResult.
//
// The first annotation carries the page's full text; the rest are blocks.
// Page confidence is the mean of block confidences, 0 without blocks.
// ok is false when the page produced no annotations at all.
func ProcessPage(pageNumber int, annotations []document.PageAnnotation) (document.PageResult, bool) {
	if len(annotations) == 0 {
		return document.PageResult{PageNumber: pageNumber}, false
	}

	result := document.PageResult{
		PageNumber: pageNumber,
		FullText:   norm.NFKC.String(annotations[0].Text),
		Blocks:     make([]document.PageAnnotation, 0, len(annotations)-1),
	}

	var sum float64
	for _, a := range annotations[1:] {
		a.PageNumber = pageNumber
		result.Blocks = append(result.Blocks, a)
		sum += a.Confidence
	}
	if len(result.Blocks) > 0 {
		result.Confidence = sanitizeConfidence(sum / float64(len(result.Blocks)))
	}
	return result, true
}
