/**
 * Data model for contract extraction
 *
 * ExtractedDocument is the aggregate root. Pages are appended in ascending
 * page order; structured fields are always recomputed from page text.
 */

package document

import (
	"time"
)

// Bounds is the axis-aligned rectangle around a recognized region, in pixels.
type Bounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// PageAnnotation is one recognized text region.
type PageAnnotation struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Bounds     Bounds  `json:"bounds"`
	PageNumber int     `json:"page_number"`
	Locale     string  `json:"locale,omitempty"`
}

// PageImage is one rasterized page as delivered by a page source.
type PageImage struct {
	Number      int    `json:"number"`
	Data        []byte `json:"data"`
	ContentType string `json:"content_type,omitempty"`
}

// PageResult is the processed form of one page.
type PageResult struct {
	PageNumber int              `json:"page_number"`
	FullText   string           `json:"full_text"`
	Blocks     []PageAnnotation `json:"blocks"`
	Confidence float64          `json:"confidence"`
}

// Party is a contracting party.
type Party struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	LegalEntity string `json:"legal_entity,omitempty"`
	Address     string `json:"address,omitempty"`
}

// Key identifies a party for deduplication.
func (p Party) Key() string {
	return p.Name + ":" + p.Role
}

// Item is a service or product line described by the contract.
type Item struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Quantity    *int     `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
}

// StructuredFields holds the contract attributes derived from text.
// Empty strings and nil pointers mean "not found".
type StructuredFields struct {
	ContractNumber string   `json:"contract_number,omitempty"`
	Parties        []Party  `json:"parties,omitempty"`
	EffectiveDate  string   `json:"effective_date,omitempty"`
	ExpirationDate string   `json:"expiration_date,omitempty"`
	PaymentTerms   []string `json:"payment_terms,omitempty"`
	TotalValue     *float64 `json:"total_value,omitempty"`
	Items          []Item   `json:"items,omitempty"`
}

// Options are the recognition options accepted per request.
type Options struct {
	Language          string `json:"language,omitempty"`
	EnhanceResolution bool   `json:"enhance_resolution,omitempty"`
	DetectOrientation bool   `json:"detect_orientation,omitempty"`
}

// PerformanceMetrics describes how much of a document has been processed.
type PerformanceMetrics struct {
	TotalPages            int   `json:"total_pages"`
	ProcessedPages        int   `json:"processed_pages"`
	RemainingPages        int   `json:"remaining_pages"`
	FailedPages           []int `json:"failed_pages,omitempty"`
	ProcessingTimeMs      int64 `json:"processing_time_ms"`
	APILatencyMs          int64 `json:"api_latency_ms"`
	BudgetMs              int64 `json:"budget_ms"`
	DocumentSize          int   `json:"document_size"`
	ContinuationScheduled bool  `json:"continuation_scheduled"`
	ContinuationTimeMs    int64 `json:"continuation_time_ms,omitempty"`
}

// ExtractedDocument is the document-level extraction result.
type ExtractedDocument struct {
	DocumentID      string                 `json:"document_id"`
	Pages           []PageResult           `json:"pages"`
	FullText        string                 `json:"full_text"`
	Blocks          []PageAnnotation       `json:"blocks"`
	Structured      StructuredFields       `json:"structured"`
	ConfidenceScore float64                `json:"confidence_score"`
	Status          Status                 `json:"status"`
	Metrics         PerformanceMetrics     `json:"performance_metrics"`
	ErrorDetails    map[string]interface{} `json:"error_details,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// Finalized reports whether no pages are pending continuation.
func (d *ExtractedDocument) Finalized() bool {
	return d.Metrics.RemainingPages == 0
}

// CorrectedData is the human-corrected version of an extraction.
type CorrectedData struct {
	Structured StructuredFields `json:"structured"`
	Blocks     []PageAnnotation `json:"blocks"`
}

// BlockChange pairs an original block with its corrected replacement.
type BlockChange struct {
	Original  PageAnnotation `json:"original"`
	Corrected PageAnnotation `json:"corrected"`
}

// Changes is the block-level diff between original and corrected data.
type Changes struct {
	Added    []PageAnnotation `json:"added"`
	Modified []BlockChange    `json:"modified"`
	Removed  []PageAnnotation `json:"removed"`
}

// Count is the number of changed blocks.
func (c Changes) Count() int {
	return len(c.Added) + len(c.Modified) + len(c.Removed)
}

// Empty reports whether no block changed.
func (c Changes) Empty() bool {
	return c.Count() == 0
}

// ValidationMetadata records how a validation was scored.
type ValidationMetadata struct {
	Changes              Changes   `json:"changes"`
	ModifiedFields       []string  `json:"modified_fields,omitempty"`
	OriginalConfidence   float64   `json:"original_confidence"`
	ValidationConfidence float64   `json:"validation_confidence"`
	OriginalBlocks       int       `json:"original_blocks"`
	CorrectedBlocks      int       `json:"corrected_blocks"`
	Timestamp            time.Time `json:"timestamp"`
}

// ValidationResult supersedes an ExtractedDocument in the cache.
type ValidationResult struct {
	ID            string             `json:"id"`
	DocumentID    string             `json:"document_id"`
	Status        Status             `json:"status"`
	ValidatedData CorrectedData      `json:"validated_data"`
	Notes         string             `json:"notes,omitempty"`
	Metadata      ValidationMetadata `json:"validation_metadata"`
}
