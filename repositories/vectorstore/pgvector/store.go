// Package pgvector queries a Postgres table with a pgvector embedding column.
//
// The expected layout is the one produced by the markdown importer:
//
//	CREATE TABLE documents (
//		id bigserial PRIMARY KEY,
//		content text,
//		context text,
//		title text,
//		link text,
//		embedding vector(1024)
//	);
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/repositories"
)

const (
	storeName = "pgvector"

	// DriverName is the database/sql driver used for dedicated connections
	DriverName = "pgx"
)

// Store implements repositories.VectorStore on top of database/sql
type Store struct {
	db     *sql.DB
	owned  bool
	query  string
	logger *zap.Logger
}

var _ repositories.VectorStore = (*Store)(nil)

// Open connects to dsn with the pgx driver. The store owns the pool.
func Open(ctx context.Context, dsn, table string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgvector: failed to ping database: %w", err)
	}
	s := NewStore(db, table, logger)
	s.owned = true
	return s, nil
}

// NewStore queries table through an existing pool, which the caller keeps
// ownership of.
func NewStore(db *sql.DB, table string, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		query:  buildQuery(table),
		logger: logger,
	}
}

func buildQuery(table string) string {
	return fmt.Sprintf(`
		SELECT id::text, COALESCE(content, ''), COALESCE(title, ''), COALESCE(link, ''),
		       1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, pq.QuoteIdentifier(table))
}

// Name returns the backend name
func (s *Store) Name() string {
	return storeName
}

// Query orders rows by cosine distance to vector
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]rag.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.query, pgvector.NewVector(vector), topK)
	if err != nil {
		if isDimensionError(err) {
			return nil, fmt.Errorf("pgvector: %v: %w", err, repositories.ErrDimensionMismatch)
		}
		return nil, fmt.Errorf("pgvector: query failed: %w", err)
	}
	defer rows.Close()

	var docs []rag.Document
	for rows.Next() {
		var (
			id, content, title, link string
			score                    float64
		)
		if err := rows.Scan(&id, &content, &title, &link, &score); err != nil {
			return nil, fmt.Errorf("pgvector: failed to scan row: %w", err)
		}

		metadata := map[string]interface{}{rag.MetadataContent: content}
		if title != "" {
			metadata["title"] = title
		}
		if link != "" {
			metadata[rag.MetadataSource] = link
		}
		docs = append(docs, rag.Document{ID: id, Score: score, Metadata: metadata})
	}
	if err := rows.Err(); err != nil {
		if isDimensionError(err) {
			return nil, fmt.Errorf("pgvector: %v: %w", err, repositories.ErrDimensionMismatch)
		}
		return nil, fmt.Errorf("pgvector: error iterating rows: %w", err)
	}

	s.logger.Debug("pgvector query completed", zap.Int("matches", len(docs)))
	return docs, nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pgvector: ping failed: %w", err)
	}
	return nil
}

// Close closes the pool when the store opened it
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// isDimensionError recognizes pgvector's "different vector dimensions"
// data exception from either driver.
func isDimensionError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.Contains(pgErr.Message, "dimensions")
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.Contains(pqErr.Message, "dimensions")
	}
	return strings.Contains(err.Error(), "different vector dimensions")
}
