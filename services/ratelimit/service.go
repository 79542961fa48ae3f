package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Window represents the time window for rate limiting
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Limits holds the maximum requests per window. Zero disables a window.
type Limits struct {
	PerMinute int
	PerHour   int
	PerDay    int
}

// Result represents the outcome of a rate limit check
type Result struct {
	Allowed           bool
	RequestsRemaining int
	ResetAt           time.Time
	ViolatedWindow    Window
	ViolationReason   string
}

// Service enforces sliding-window request limits per client, backed by PostgreSQL
type Service struct {
	db     *sql.DB
	limits Limits
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new rate limit service
func NewService(db *sql.DB, limits Limits, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// Allow checks every configured window for client and, when all pass,
// records the request.
func (s *Service) Allow(ctx context.Context, client string) (*Result, error) {
	scopeKey := buildScopeKey(client)
	now := s.now().UTC()

	checks := []struct {
		window Window
		limit  int
	}{
		{WindowMinute, s.limits.PerMinute},
		{WindowHour, s.limits.PerHour},
		{WindowDay, s.limits.PerDay},
	}

	result := &Result{Allowed: true, RequestsRemaining: -1}
	for _, c := range checks {
		if c.limit <= 0 {
			continue
		}
		allowed, remaining, resetAt, err := s.checkWindow(ctx, scopeKey, c.window, now, c.limit)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s window: %w", c.window, err)
		}
		if !allowed {
			return &Result{
				Allowed:         false,
				ResetAt:         resetAt,
				ViolatedWindow:  c.window,
				ViolationReason: fmt.Sprintf("exceeded %d requests per %s", c.limit, c.window),
			}, nil
		}
		// the tightest window decides what the client sees
		if result.RequestsRemaining < 0 || remaining-1 < result.RequestsRemaining {
			result.RequestsRemaining = remaining - 1
			result.ResetAt = resetAt
		}
	}

	if err := s.recordEvent(ctx, scopeKey, now); err != nil {
		return nil, fmt.Errorf("failed to record request: %w", err)
	}

	if result.RequestsRemaining < 0 {
		result.RequestsRemaining = 0
	}
	return result, nil
}

// checkWindow checks if the limit is exceeded for a specific time window
// The window frees a slot when its oldest event ages out, so resetAt is that
// event plus the window length, or now plus the window length when empty.
func (s *Service) checkWindow(ctx context.Context, scopeKey string, window Window, now time.Time, limit int) (allowed bool, remaining int, resetAt time.Time, err error) {
	length := windowLength(window)

	query := `
		SELECT COUNT(*), MIN(timestamp)
		FROM rate_limit_events
		WHERE scope_key = $1
		  AND timestamp >= $2
		  AND timestamp <= $3
	`

	var (
		count  int
		oldest sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, scopeKey, now.Add(-length), now).Scan(&count, &oldest)
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("failed to query rate limit: %w", err)
	}

	resetAt = now.Add(length)
	if oldest.Valid {
		resetAt = oldest.Time.UTC().Add(length)
	}

	if count >= limit {
		return false, 0, resetAt, nil
	}
	return true, limit - count, resetAt, nil
}

// recordEvent records a rate limit event
func (s *Service) recordEvent(ctx context.Context, scopeKey string, timestamp time.Time) error {
	query := `
		INSERT INTO rate_limit_events (scope_key, timestamp)
		VALUES ($1, $2)
	`

	if _, err := s.db.ExecContext(ctx, query, scopeKey, timestamp); err != nil {
		return fmt.Errorf("failed to insert rate limit event: %w", err)
	}
	return nil
}

// windowLength returns the duration covered by a time window
func windowLength(window Window) time.Duration {
	switch window {
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

func buildScopeKey(client string) string {
	return "ask:client:" + client
}

// CleanupOldRequests removes events older than the retention period
func (s *Service) CleanupOldRequests(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoffTime := s.now().UTC().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE timestamp < $1`, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old requests: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("cleaned up old rate limit events",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("cutoff_time", cutoffTime))

	return rowsAffected, nil
}

// StartCleanupWorker periodically deletes expired events until ctx is done
func (s *Service) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started rate limit cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOldRequests(ctx, retention); err != nil {
				s.logger.Error("failed to cleanup old requests", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping rate limit cleanup worker")
			return
		}
	}
}
