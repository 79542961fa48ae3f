package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"github.com/longevity/longevity-backend/config"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	return Open(cfg.DSN(), cfg, logger)
}

// Open connects to dsn using the pool settings from cfg. It is shared by the
// query-log database and the pgvector store.
func Open(dsn string, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(db, logger), nil
}

// Wrap adopts an existing pool, e.g. one opened by sqlmock in tests.
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// InitQueryLogSchema creates the query_logs table if needed
func (db *DB) InitQueryLogSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS query_logs (
			id UUID PRIMARY KEY,
			request_id VARCHAR(255),
			question TEXT NOT NULL,
			state VARCHAR(50) NOT NULL,
			failure_kind VARCHAR(50),
			source_ids TEXT[] NOT NULL DEFAULT '{}',
			vector_store VARCHAR(50) NOT NULL,
			model VARCHAR(100),
			provider VARCHAR(100),
			prompt_tokens INTEGER,
			output_tokens INTEGER,
			latency_ms INTEGER NOT NULL,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_query_logs_timestamp ON query_logs(timestamp);
		CREATE INDEX IF NOT EXISTS idx_query_logs_state ON query_logs(state);
		CREATE INDEX IF NOT EXISTS idx_query_logs_request_id ON query_logs(request_id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize query log schema: %w", err)
	}
	db.logger.Info("query log schema initialized successfully")
	return nil
}

// InitRateLimitSchema creates the rate_limit_events table if needed
func (db *DB) InitRateLimitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS rate_limit_events (
			id BIGSERIAL PRIMARY KEY,
			scope_key VARCHAR(255) NOT NULL,
			timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_rate_limit_events_scope_timestamp ON rate_limit_events(scope_key, timestamp);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize rate limit schema: %w", err)
	}
	db.logger.Info("rate limit schema initialized successfully")
	return nil
}
