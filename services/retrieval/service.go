package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/longevity/longevity-backend/internal/observability"
	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/repositories"
	"github.com/longevity/longevity-backend/services"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Service runs nearest-neighbour queries against a VectorStore
type Service struct {
	store      repositories.VectorStore
	dimensions int
	timeout    time.Duration
	logger     *zap.Logger
}

// NewService creates a retrieval service. dimensions is the index width;
// vectors of any other length are rejected before the store is called.
func NewService(store repositories.VectorStore, dimensions int, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Service{
		store:      store,
		dimensions: dimensions,
		timeout:    timeout,
		logger:     logger,
	}
}

// Store returns the backing vector store
func (s *Service) Store() repositories.VectorStore {
	return s.store
}

// Retrieve returns at most k documents ordered by descending score.
func (s *Service) Retrieve(ctx context.Context, vector []float32, k int) (result *rag.RetrievalResult, err error) {
	if k <= 0 {
		return nil, services.WrapInvalidInput(fmt.Sprintf("k must be positive, got %d", k), nil)
	}
	if len(vector) != s.dimensions {
		return nil, services.WrapDimensionMismatch(s.dimensions, len(vector))
	}

	ctx, span := observability.StartSpan(ctx, "rag.retrieve",
		attribute.String("vectorstore.backend", s.store.Name()),
		attribute.Int("retrieval.k", k))
	defer func() { observability.EndSpan(span, err) }()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	docs, err := s.store.Query(callCtx, vector, k)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrDimensionMismatch):
			return nil, services.NewDomainError(services.ErrorTypeDimensionMismatch,
				"vector store rejected the embedding dimension", err)
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return nil, services.WrapUpstream(
				fmt.Sprintf("vector store query timed out after %s", s.timeout), err)
		default:
			return nil, services.WrapUpstream("vector store query failed", err)
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Score > docs[j].Score
	})
	if len(docs) > k {
		docs = docs[:k]
	}

	span.SetAttributes(attribute.Int("retrieval.matches", len(docs)))
	s.logger.Debug("vector store queried",
		zap.String("backend", s.store.Name()),
		zap.Int("matches", len(docs)),
		zap.Duration("latency", time.Since(start)))

	return &rag.RetrievalResult{Documents: docs}, nil
}
