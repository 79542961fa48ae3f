// Package milvus searches a Milvus collection. The collection is expected to
// use a similarity metric (COSINE or IP) so higher scores rank first.
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"go.uber.org/zap"

	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/repositories"
)

const storeName = "milvus"

// Config holds the connection and collection settings
type Config struct {
	Address      string
	Username     string
	Password     string
	Database     string
	Collection   string
	VectorField  string
	OutputFields []string
}

// Store implements repositories.VectorStore for Milvus
type Store struct {
	client *milvusclient.Client
	config Config
	logger *zap.Logger
}

var _ repositories.VectorStore = (*Store)(nil)

// NewStore connects to Milvus and loads the collection into memory.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	loadTask, err := c.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(cfg.Collection))
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	if cfg.VectorField == "" {
		cfg.VectorField = "embedding"
	}

	logger.Info("milvus collection loaded", zap.String("collection", cfg.Collection))
	return &Store{client: c, config: cfg, logger: logger}, nil
}

// Name returns the backend name
func (s *Store) Name() string {
	return storeName
}

// Query performs an ANN search on the configured vector field
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]rag.Document, error) {
	results, err := s.client.Search(ctx, milvusclient.NewSearchOption(
		s.config.Collection,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(s.config.VectorField).
		WithOutputFields(s.config.OutputFields...))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "dimension") {
			return nil, fmt.Errorf("milvus: %v: %w", err, repositories.ErrDimensionMismatch)
		}
		return nil, fmt.Errorf("milvus: search failed: %w", err)
	}

	if len(results) == 0 {
		return []rag.Document{}, nil
	}

	docs, err := convertResultSet(results[0])
	if err != nil {
		return nil, err
	}

	s.logger.Debug("milvus search completed",
		zap.String("collection", s.config.Collection),
		zap.Int("matches", len(docs)))
	return docs, nil
}

// Ping checks that the collection exists
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.config.Collection))
	if err != nil {
		return fmt.Errorf("milvus: ping failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("milvus: collection %q not found", s.config.Collection)
	}
	return nil
}

// Close closes the client connection
func (s *Store) Close() error {
	return s.client.Close(context.Background())
}

func convertResultSet(rs milvusclient.ResultSet) ([]rag.Document, error) {
	if rs.Err != nil {
		return nil, fmt.Errorf("milvus: result error: %w", rs.Err)
	}
	if len(rs.Scores) < rs.ResultCount {
		return nil, fmt.Errorf("milvus: %d scores for %d results", len(rs.Scores), rs.ResultCount)
	}

	docs := make([]rag.Document, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		id, err := idAt(rs.IDs, i)
		if err != nil {
			return nil, err
		}

		metadata := make(map[string]interface{})
		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				if i < col.Len() {
					metadata[col.Name()] = col.Data()[i]
				}
			case *column.ColumnInt64:
				if i < col.Len() {
					metadata[col.Name()] = col.Data()[i]
				}
			}
		}

		docs = append(docs, rag.Document{
			ID:       id,
			Score:    float64(rs.Scores[i]),
			Metadata: metadata,
		})
	}
	return docs, nil
}

func idAt(ids column.Column, i int) (string, error) {
	switch col := ids.(type) {
	case *column.ColumnInt64:
		if i < col.Len() {
			return strconv.FormatInt(col.Data()[i], 10), nil
		}
	case *column.ColumnVarChar:
		if i < col.Len() {
			return col.Data()[i], nil
		}
	}
	return "", fmt.Errorf("milvus: missing id for result %d", i)
}
