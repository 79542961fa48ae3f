package repositories

import (
	"context"
	"errors"

	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/models"
)

// ErrDimensionMismatch is returned (wrapped) by a VectorStore when the index
// rejects the query vector's length.
var ErrDimensionMismatch = errors.New("vector dimension does not match index")

// VectorStore is a read-only similarity index over pre-ingested passages.
type VectorStore interface {
	// Name identifies the backend in logs
	Name() string

	// Query returns at most topK documents ordered by descending score
	Query(ctx context.Context, vector []float32, topK int) ([]rag.Document, error)

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error

	// Close releases client resources
	Close() error
}

// QueryLogRepository persists the outcome of each question
type QueryLogRepository interface {
	// Insert inserts a new query log entry
	Insert(ctx context.Context, log *models.QueryLog) error

	// ListRecent returns the newest entries first
	ListRecent(ctx context.Context, limit int) ([]*models.QueryLog, error)
}
