package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// QueryLog is one answered (or failed) question, persisted for audit.
// It never carries embeddings or answers.
type QueryLog struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	RequestID    string         `json:"request_id" db:"request_id"`
	Question     string         `json:"question" db:"question"` // PII redacted
	State        string         `json:"state" db:"state"`
	FailureKind  *string        `json:"failure_kind,omitempty" db:"failure_kind"`
	SourceIDs    pq.StringArray `json:"source_ids" db:"source_ids"`
	VectorStore  string         `json:"vector_store" db:"vector_store"`
	Model        *string        `json:"model,omitempty" db:"model"`
	Provider     *string        `json:"provider,omitempty" db:"provider"`
	PromptTokens *int           `json:"prompt_tokens,omitempty" db:"prompt_tokens"`
	OutputTokens *int           `json:"output_tokens,omitempty" db:"output_tokens"`
	LatencyMs    int            `json:"latency_ms" db:"latency_ms"`
	Timestamp    time.Time      `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the QueryLog model
func (QueryLog) TableName() string {
	return "query_logs"
}

// NewQueryLog creates a new QueryLog instance
func NewQueryLog(requestID, question, state string) *QueryLog {
	return &QueryLog{
		ID:        uuid.New(),
		RequestID: requestID,
		Question:  question,
		State:     state,
		SourceIDs: pq.StringArray{},
		Timestamp: time.Now().UTC(),
	}
}

// WithFailure sets the failure kind
func (q *QueryLog) WithFailure(kind string) *QueryLog {
	if kind != "" {
		q.FailureKind = &kind
	}
	return q
}

// WithSources sets the ids of the documents the answer was grounded on
func (q *QueryLog) WithSources(ids []string) *QueryLog {
	q.SourceIDs = append(pq.StringArray{}, ids...)
	return q
}

// WithGeneration sets model metadata for answered questions
func (q *QueryLog) WithGeneration(model, provider string, promptTokens, outputTokens int) *QueryLog {
	q.Model = &model
	q.Provider = &provider
	q.PromptTokens = &promptTokens
	q.OutputTokens = &outputTokens
	return q
}

// WithLatency sets the end-to-end latency
func (q *QueryLog) WithLatency(d time.Duration) *QueryLog {
	q.LatencyMs = int(d.Milliseconds())
	return q
}
