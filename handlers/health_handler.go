package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/longevity/longevity-backend/services/querylog"
	"github.com/longevity/longevity-backend/utils"
	"go.uber.org/zap"
)

const readinessTimeout = 5 * time.Second

// RootResponse is the body of GET /
type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	QueryLog  *QueryLogStatus   `json:"query_log,omitempty"`
}

// QueryLogStatus reports the asynchronous query log buffer
type QueryLogStatus struct {
	Running        bool  `json:"running"`
	BufferSize     int   `json:"buffer_size"`
	PendingEntries int   `json:"pending_entries"`
	Workers        int   `json:"workers"`
	Dropped        int64 `json:"dropped"`
}

// QueryLogStatsSource exposes query log buffer statistics
type QueryLogStatsSource interface {
	GetStats() querylog.Stats
}

// HealthChecker is a dependency that can report whether it is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Pinger is a dependency checked with Ping
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db          HealthChecker
	vectorStore Pinger
	queryLog    QueryLogStatsSource
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil when no
// database is configured.
func NewHealthHandler(db HealthChecker, vectorStore Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:          db,
		vectorStore: vectorStore,
		logger:      logger,
	}
}

// WithQueryLog adds query log buffer statistics to the readiness report.
// They are informational and never make the service unready.
func (h *HealthHandler) WithQueryLog(stats QueryLogStatsSource) *HealthHandler {
	h.queryLog = stats
	return h
}

// HandleRoot handles GET /
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, RootResponse{
		Status:  "ok",
		Message: "longevity Backend è attivo",
	})
}

// HandleHealth handles GET /healthz
// Liveness only; always returns 200 while the process serves requests
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db != nil {
		if err := h.db.HealthCheck(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			allHealthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	if h.vectorStore != nil {
		if err := h.vectorStore.Ping(ctx); err != nil {
			h.logger.Warn("vector store health check failed", zap.Error(err))
			checks["vector_store"] = "unhealthy"
			allHealthy = false
		} else {
			checks["vector_store"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if h.queryLog != nil {
		stats := h.queryLog.GetStats()
		response.QueryLog = &QueryLogStatus{
			Running:        stats.Started,
			BufferSize:     stats.BufferSize,
			PendingEntries: stats.PendingEntries,
			Workers:        stats.WorkerCount,
			Dropped:        stats.Dropped,
		}
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
