package processor

import (
	"math"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
)

// DefaultConfidenceThreshold is the score at or above which no review is needed.
const DefaultConfidenceThreshold = 0.95

// Scorer assigns the aggregate confidence and status of a document.
type Scorer struct {
	Threshold float64
}

// Score is the mean page confidence.
func (s Scorer) Score(pages []document.PageResult) float64 {
	if len(pages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pages {
		sum += p.Confidence
	}
	return sanitizeConfidence(sum / float64(len(pages)))
}

// Apply sets ConfidenceScore and Status from the document's pages and metrics.
// A document with no successful page is FAILED once nothing remains to process.
func (s Scorer) Apply(doc *document.ExtractedDocument) {
	doc.ConfidenceScore = s.Score(doc.Pages)

	switch {
	case len(doc.Pages) == 0 && doc.Metrics.RemainingPages > 0:
		doc.Status = document.StatusProcessing
	case len(doc.Pages) == 0:
		doc.Status = document.StatusFailed
	case doc.ConfidenceScore >= s.threshold():
		doc.Status = document.StatusCompleted
	default:
		doc.Status = document.StatusValidationRequired
	}
}

func (s Scorer) threshold() float64 {
	if s.Threshold <= 0 {
		return DefaultConfidenceThreshold
	}
	return s.Threshold
}

// sanitizeConfidence ensures confidence is in [0,1] with 4 decimal places.
func sanitizeConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) {
		return 0
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return math.Round(confidence*10000) / 10000
}
