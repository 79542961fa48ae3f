package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/longevity/longevity-backend/app"
	"github.com/longevity/longevity-backend/config"
	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/services/query"
	"github.com/longevity/longevity-backend/services/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubRetriever struct{}

func (stubRetriever) Retrieve(ctx context.Context, vector []float32, k int) (*rag.RetrievalResult, error) {
	return &rag.RetrievalResult{}, nil
}

type stubStore struct{}

func (stubStore) Name() string { return "stub" }

func (stubStore) Query(ctx context.Context, vector []float32, topK int) ([]rag.Document, error) {
	return nil, nil
}

func (stubStore) Ping(ctx context.Context) error { return nil }

func (stubStore) Close() error { return nil }

func testDeps() *app.Dependencies {
	logger := zap.NewNop()
	return &app.Dependencies{
		Config: &config.Config{
			Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
			CORS:   config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}, AllowCredentials: true},
		},
		Logger:      logger,
		VectorStore: stubStore{},
		Query:       query.NewService(stubEmbedder{}, stubRetriever{}, nil, nil, query.Config{}, logger),
	}
}

func TestSetupRoutes(t *testing.T) {
	router := SetupRoutes(testDeps())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "root", method: http.MethodGet, path: "/", status: http.StatusOK},
		{name: "liveness", method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{name: "readiness", method: http.MethodGet, path: "/readyz", status: http.StatusOK},
		{name: "ask without evidence", method: http.MethodPost, path: "/ask", body: `{"question":"Quante proteine?"}`, status: http.StatusNotFound},
		{name: "versioned ask", method: http.MethodPost, path: "/api/v1/ask", body: `{"question":"Quante proteine?"}`, status: http.StatusNotFound},
		{name: "ask with bad body", method: http.MethodPost, path: "/ask", body: `{}`, status: http.StatusBadRequest},
		{name: "unknown path", method: http.MethodGet, path: "/nope", status: http.StatusNotFound},
		{name: "wrong method", method: http.MethodGet, path: "/ask", status: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestSetupRoutes_CORS(t *testing.T) {
	router := SetupRoutes(testDeps())

	req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestSetupRoutes_RateLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	deps := testDeps()
	deps.RateLimit = ratelimit.NewService(db, ratelimit.Limits{PerMinute: 1}, zap.NewNop())
	router := SetupRoutes(deps)

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count", "min"}).AddRow(1, time.Now().UTC()))

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"Quante proteine?"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// health endpoints are not limited
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
