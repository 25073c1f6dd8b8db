package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/contract-ocr-worker/internal/document"
	"github.com/adverant/nexus/contract-ocr-worker/internal/processor"
)

// Task types understood by the consumer.
const (
	TypeProcessDocument  = "process-document"
	TypeContinueDocument = "continue-document"
)

// ProcessPayload is the job data of a process-document task.
type ProcessPayload struct {
	DocumentID string           `json:"documentId"`
	Ref        string           `json:"ref"`
	Options    document.Options `json:"options"`
	BudgetMs   int64            `json:"budgetMs,omitempty"`
}

func (p ProcessPayload) budget() time.Duration {
	return time.Duration(p.BudgetMs) * time.Millisecond
}

// NewProcessDocumentTask builds a process-document task.
func NewProcessDocumentTask(p ProcessPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job data: %w", err)
	}
	return asynq.NewTask(TypeProcessDocument, payload), nil
}

// NewContinueDocumentTask builds a continue-document task. Page bytes are
// carried in the payload.
func NewContinueDocumentTask(req *processor.ContinuationRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal continuation: %w", err)
	}
	return asynq.NewTask(TypeContinueDocument, payload), nil
}

// continuationTaskID is stable per processing run, so a continuation enqueued
// twice is deduplicated by the broker while a re-run of the document gets a
// fresh id even though asynq retains the ids of completed tasks.
func continuationTaskID(req *processor.ContinuationRequest) string {
	if req.RunID != "" {
		return "continue:" + req.DocumentID + ":" + req.RunID
	}
	return "continue:" + req.DocumentID + ":" + strconv.FormatInt(req.ScheduledAt.UnixNano(), 10)
}
