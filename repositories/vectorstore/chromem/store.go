// Package chromem serves queries from an embedded chromem-go database that was
// exported to a gob file by the ingestion tooling.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/repositories"
)

const storeName = "chromem"

// errTextQuery is returned if chromem ever tries to embed text itself.
// Queries always arrive as vectors from the embedding service.
var errTextQuery = errors.New("chromem: text queries are not supported")

// Store implements repositories.VectorStore for an in-process collection
type Store struct {
	collection *chromem.Collection
	logger     *zap.Logger
}

var _ repositories.VectorStore = (*Store)(nil)

// Open imports the database file at path and selects collection.
func Open(path, encryptionKey, collection string, logger *zap.Logger) (*Store, error) {
	db := chromem.NewDB()
	if err := db.ImportFromFile(path, encryptionKey, collection); err != nil {
		return nil, fmt.Errorf("chromem: failed to import %s: %w", path, err)
	}

	c := db.GetCollection(collection, rejectTextEmbedding)
	if c == nil {
		return nil, fmt.Errorf("chromem: collection %q not found in %s", collection, path)
	}

	logger.Info("chromem database loaded",
		zap.String("path", path),
		zap.String("collection", collection),
		zap.Int("documents", c.Count()))

	return NewStore(c, logger), nil
}

// NewStore wraps an already loaded collection
func NewStore(collection *chromem.Collection, logger *zap.Logger) *Store {
	return &Store{collection: collection, logger: logger}
}

func rejectTextEmbedding(context.Context, string) ([]float32, error) {
	return nil, errTextQuery
}

// Name returns the backend name
func (s *Store) Name() string {
	return storeName
}

// Query runs an exhaustive cosine-similarity search. topK is clamped to the
// collection size because chromem rejects larger values.
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]rag.Document, error) {
	n := topK
	if count := s.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return []rag.Document{}, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		if strings.Contains(err.Error(), "same length") {
			return nil, fmt.Errorf("chromem: %v: %w", err, repositories.ErrDimensionMismatch)
		}
		return nil, fmt.Errorf("chromem: query failed: %w", err)
	}

	docs := make([]rag.Document, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]interface{}, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		metadata[rag.MetadataContent] = r.Content

		docs = append(docs, rag.Document{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: metadata,
		})
	}

	s.logger.Debug("chromem query completed", zap.Int("matches", len(docs)))
	return docs, nil
}

// Ping always succeeds once the collection is loaded
func (s *Store) Ping(context.Context) error {
	if s.collection == nil {
		return errors.New("chromem: collection not loaded")
	}
	return nil
}

// Close is a no-op for the in-memory database
func (s *Store) Close() error {
	return nil
}
