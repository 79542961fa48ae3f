package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/longevity/longevity-backend/internal/observability"
	"github.com/longevity/longevity-backend/services"
	"github.com/longevity/longevity-backend/services/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Config holds the embedding model settings
type Config struct {
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// Service turns question text into a vector through an EmbeddingProvider
type Service struct {
	provider providers.EmbeddingProvider
	cfg      Config
	logger   *zap.Logger
}

// NewService creates a new embedding service
func NewService(provider providers.EmbeddingProvider, cfg Config, logger *zap.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Service{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

// Dimensions returns the vector length the service asks the provider for
func (s *Service) Dimensions() int {
	return s.cfg.Dimensions
}

// Embed returns the embedding of text. Blank text is rejected without calling
// the provider; every provider failure is reported as upstream unavailable.
func (s *Service) Embed(ctx context.Context, text string) (vector []float32, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.ErrEmptyQuestion
	}

	ctx, span := observability.StartSpan(ctx, "rag.embed",
		attribute.String("embedding.provider", s.provider.Name()),
		attribute.String("embedding.model", s.cfg.Model))
	defer func() { observability.EndSpan(span, err) }()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.provider.Embed(callCtx, &providers.EmbeddingRequest{
		Model:      s.cfg.Model,
		Input:      text,
		Dimensions: s.cfg.Dimensions,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, services.WrapUpstream(
				fmt.Sprintf("embedding timed out after %s", s.cfg.Timeout), err)
		}
		return nil, services.WrapUpstream("embedding request failed", err)
	}
	if resp == nil || len(resp.Embedding) == 0 {
		return nil, services.WrapUpstream("embedding provider returned an empty vector", nil)
	}

	span.SetAttributes(attribute.Int("embedding.dimensions", len(resp.Embedding)))
	s.logger.Debug("text embedded",
		zap.String("provider", s.provider.Name()),
		zap.Int("dimensions", len(resp.Embedding)),
		zap.Duration("latency", time.Since(start)))

	return resp.Embedding, nil
}
