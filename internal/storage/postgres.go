/**
 * PostgreSQL ledger for the contract OCR worker
 *
 * Mirrors every cached extraction and validation into contract_ocr.extractions
 * so results outlive the cache TTL. The cache remains the source of truth
 * for in-flight documents.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
	"github.com/adverant/nexus/contract-ocr-worker/internal/errors"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS contract_ocr;
	CREATE TABLE IF NOT EXISTS contract_ocr.extractions (
		document_id            TEXT PRIMARY KEY,
		status                 TEXT NOT NULL,
		confidence             NUMERIC(5,4),
		total_pages            INTEGER NOT NULL DEFAULT 0,
		processed_pages        INTEGER NOT NULL DEFAULT 0,
		remaining_pages        INTEGER NOT NULL DEFAULT 0,
		failed_pages           INTEGER[],
		processing_time_ms     BIGINT,
		contract_number        TEXT,
		structured             JSONB NOT NULL DEFAULT '{}'::jsonb,
		error_details          JSONB,
		validation_id          TEXT,
		validation_status      TEXT,
		validation_confidence  NUMERIC(5,4),
		validation             JSONB,
		created_at             TIMESTAMPTZ NOT NULL,
		updated_at             TIMESTAMPTZ NOT NULL
	);
`

// sanitizeConfidence rounds confidence to 4 decimal places to fit NUMERIC(5,4)
// and clamps it to [0.0, 1.0].
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres strips escapes JSONB rejects. OCR output
// occasionally contains NUL and other control characters.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the ledger table if it does not exist.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

// extractionRow is the column set written for one extraction.
type extractionRow struct {
	DocumentID       string
	Status           string
	Confidence       float64
	TotalPages       int
	ProcessedPages   int
	RemainingPages   int
	FailedPages      []int64
	ProcessingTimeMs int64
	ContractNumber   string
	Structured       []byte
	ErrorDetails     []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func newExtractionRow(doc *document.ExtractedDocument) (*extractionRow, error) {
	structured, err := json.Marshal(doc.Structured)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal structured fields: %w", err)
	}

	var details []byte
	if len(doc.ErrorDetails) > 0 {
		if details, err = json.Marshal(doc.ErrorDetails); err != nil {
			return nil, fmt.Errorf("failed to marshal error details: %w", err)
		}
		details = sanitizeJSONForPostgres(details)
	}

	failed := make([]int64, len(doc.Metrics.FailedPages))
	for i, n := range doc.Metrics.FailedPages {
		failed[i] = int64(n)
	}

	return &extractionRow{
		DocumentID:       doc.DocumentID,
		Status:           string(doc.Status),
		Confidence:       sanitizeConfidence(doc.ConfidenceScore),
		TotalPages:       doc.Metrics.TotalPages,
		ProcessedPages:   doc.Metrics.ProcessedPages,
		RemainingPages:   doc.Metrics.RemainingPages,
		FailedPages:      failed,
		ProcessingTimeMs: doc.Metrics.ProcessingTimeMs + doc.Metrics.ContinuationTimeMs,
		ContractNumber:   doc.Structured.ContractNumber,
		Structured:       sanitizeJSONForPostgres(structured),
		ErrorDetails:     details,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}, nil
}

// RecordExtraction upserts the extraction state of a document.
func (p *PostgresClient) RecordExtraction(ctx context.Context, doc *document.ExtractedDocument) error {
	if doc == nil || doc.DocumentID == "" {
		return fmt.Errorf("document ID is required")
	}

	row, err := newExtractionRow(doc)
	if err != nil {
		return errors.NewStorageFailedError(doc.DocumentID, err)
	}

	query := `
		INSERT INTO contract_ocr.extractions (
			document_id, status, confidence,
			total_pages, processed_pages, remaining_pages, failed_pages,
			processing_time_ms, contract_number, structured, error_details,
			created_at, updated_at
		) VALUES (
			$1, $2, $3::NUMERIC(5,4),
			$4, $5, $6, $7,
			NULLIF($8, 0), NULLIF($9, ''), $10::jsonb, $11::jsonb,
			$12, $13
		)
		ON CONFLICT (document_id) DO UPDATE SET
			status = EXCLUDED.status,
			confidence = EXCLUDED.confidence,
			total_pages = EXCLUDED.total_pages,
			processed_pages = EXCLUDED.processed_pages,
			remaining_pages = EXCLUDED.remaining_pages,
			failed_pages = EXCLUDED.failed_pages,
			processing_time_ms = EXCLUDED.processing_time_ms,
			contract_number = EXCLUDED.contract_number,
			structured = EXCLUDED.structured,
			error_details = EXCLUDED.error_details,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, query,
		row.DocumentID, row.Status, row.Confidence,
		row.TotalPages, row.ProcessedPages, row.RemainingPages, pq.Array(row.FailedPages),
		row.ProcessingTimeMs, row.ContractNumber, row.Structured, nullableJSON(row.ErrorDetails),
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return errors.NewStorageFailedError(doc.DocumentID,
			fmt.Errorf("failed to record extraction (status=%s, confidence=%.4f): %w", row.Status, row.Confidence, err))
	}
	return nil
}

// RecordValidation attaches the latest validation to the document's row.
func (p *PostgresClient) RecordValidation(ctx context.Context, result *document.ValidationResult) error {
	if result == nil || result.DocumentID == "" {
		return fmt.Errorf("document ID is required")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return errors.NewStorageFailedError(result.DocumentID, fmt.Errorf("failed to marshal validation: %w", err))
	}

	query := `
		UPDATE contract_ocr.extractions SET
			validation_id = $2,
			validation_status = $3,
			validation_confidence = $4::NUMERIC(5,4),
			validation = $5::jsonb,
			updated_at = NOW()
		WHERE document_id = $1
	`

	res, err := p.db.ExecContext(ctx, query,
		result.DocumentID,
		result.ID,
		string(result.Status),
		sanitizeConfidence(result.Metadata.ValidationConfidence),
		sanitizeJSONForPostgres(payload),
	)
	if err != nil {
		return errors.NewStorageFailedError(result.DocumentID, fmt.Errorf("failed to record validation: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewStorageFailedError(result.DocumentID, fmt.Errorf("no ledger row for document"))
	}
	return nil
}

// GetExtraction returns the ledger row of a document as a map.
func (p *PostgresClient) GetExtraction(ctx context.Context, documentID string) (map[string]interface{}, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document ID is required")
	}

	query := `
		SELECT
			document_id, status, confidence,
			total_pages, processed_pages, remaining_pages,
			contract_number, validation_status, validation_confidence,
			created_at, updated_at
		FROM contract_ocr.extractions
		WHERE document_id = $1
	`

	var (
		id, status                       string
		confidence, validationConfidence sql.NullFloat64
		total, processed, remaining      int
		contractNumber, validationStatus sql.NullString
		createdAt, updatedAt             time.Time
	)

	err := p.db.QueryRowContext(ctx, query, documentID).Scan(
		&id, &status, &confidence,
		&total, &processed, &remaining,
		&contractNumber, &validationStatus, &validationConfidence,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("extraction %s: %w", documentID, errors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get extraction: %w", err)
	}

	result := map[string]interface{}{
		"documentId":     id,
		"status":         status,
		"totalPages":     total,
		"processedPages": processed,
		"remainingPages": remaining,
		"createdAt":      createdAt,
		"updatedAt":      updatedAt,
	}
	if confidence.Valid {
		result["confidence"] = confidence.Float64
	}
	if contractNumber.Valid {
		result["contractNumber"] = contractNumber.String
	}
	if validationStatus.Valid {
		result["validationStatus"] = validationStatus.String
	}
	if validationConfidence.Valid {
		result["validationConfidence"] = validationConfidence.Float64
	}
	return result, nil
}

func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
