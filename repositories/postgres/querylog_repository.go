package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/longevity/longevity-backend/models"
	"github.com/longevity/longevity-backend/repositories"
)

const defaultListLimit = 50

// QueryLogRepository implements the repositories.QueryLogRepository interface
type QueryLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewQueryLogRepository creates a new query log repository
func NewQueryLogRepository(db *DB, logger *zap.Logger) repositories.QueryLogRepository {
	return &QueryLogRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new query log entry
func (r *QueryLogRepository) Insert(ctx context.Context, log *models.QueryLog) error {
	query := `
		INSERT INTO query_logs (
			id, request_id, question, state, failure_kind, source_ids, vector_store,
			model, provider, prompt_tokens, output_tokens, latency_ms, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.RequestID,
		log.Question,
		log.State,
		log.FailureKind,
		log.SourceIDs,
		log.VectorStore,
		log.Model,
		log.Provider,
		log.PromptTokens,
		log.OutputTokens,
		log.LatencyMs,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}

	r.logger.Debug("query log inserted", zap.String("id", log.ID.String()), zap.String("state", log.State))
	return nil
}

// ListRecent returns the newest entries first
func (r *QueryLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.QueryLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT id, request_id, question, state, failure_kind, source_ids, vector_store,
		       model, provider, prompt_tokens, output_tokens, latency_ms, timestamp
		FROM query_logs
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.QueryLog
	for rows.Next() {
		log := &models.QueryLog{}
		if err := rows.Scan(
			&log.ID,
			&log.RequestID,
			&log.Question,
			&log.State,
			&log.FailureKind,
			&log.SourceIDs,
			&log.VectorStore,
			&log.Model,
			&log.Provider,
			&log.PromptTokens,
			&log.OutputTokens,
			&log.LatencyMs,
			&log.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan query log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query logs: %w", err)
	}

	return logs, nil
}
