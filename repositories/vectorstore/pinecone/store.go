// Package pinecone queries a Pinecone index through the official Go SDK.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/repositories"
)

const storeName = "pinecone"

// Config holds the index connection settings. IndexHost, when set, skips the
// DescribeIndex lookup of IndexName.
type Config struct {
	APIKey    string
	IndexName string
	IndexHost string
	Namespace string
	Timeout   time.Duration

	// ControllerHost overrides the control plane URL
	ControllerHost string
}

// indexConn is the part of *pinecone.IndexConnection the store uses
type indexConn interface {
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

// indexDescriber resolves an index name to its data plane host
type indexDescriber interface {
	DescribeIndex(ctx context.Context, idxName string) (*pinecone.Index, error)
}

// Store implements repositories.VectorStore for Pinecone
type Store struct {
	conn    indexConn
	host    string
	timeout time.Duration
	logger  *zap.Logger
}

var _ repositories.VectorStore = (*Store)(nil)

// NewStore connects to the index, resolving its host from the index name
// unless one is configured.
func NewStore(ctx context.Context, config Config, logger *zap.Logger) (*Store, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: config.APIKey,
		Host:   config.ControllerHost,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone: failed to create client: %w", err)
	}

	host, err := resolveHost(ctx, client, config)
	if err != nil {
		return nil, err
	}

	conn, err := client.Index(pinecone.NewIndexConnParams{
		Host:      host,
		Namespace: config.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone: failed to connect to index %s: %w", host, err)
	}

	logger.Info("connected to pinecone index",
		zap.String("index", config.IndexName),
		zap.String("host", host),
		zap.String("namespace", config.Namespace))

	return newStore(conn, host, config.Timeout, logger), nil
}

func newStore(conn indexConn, host string, timeout time.Duration, logger *zap.Logger) *Store {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		conn:    conn,
		host:    host,
		timeout: timeout,
		logger:  logger,
	}
}

func resolveHost(ctx context.Context, describer indexDescriber, config Config) (string, error) {
	if config.IndexHost != "" {
		return strings.TrimRight(config.IndexHost, "/"), nil
	}
	if config.IndexName == "" {
		return "", errors.New("pinecone: index name or host is required")
	}

	idx, err := describer.DescribeIndex(ctx, config.IndexName)
	if err != nil {
		return "", fmt.Errorf("pinecone: failed to describe index %s: %w", config.IndexName, err)
	}
	if idx.Host == "" {
		return "", fmt.Errorf("pinecone: index %s has no host yet", config.IndexName)
	}
	return idx.Host, nil
}

// Name returns the backend name
func (s *Store) Name() string {
	return storeName
}

// Query runs a nearest-neighbour query with metadata included
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]rag.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, classify(err)
	}

	docs := make([]rag.Document, 0, len(resp.Matches))
	for i, m := range resp.Matches {
		if m == nil || m.Vector == nil || m.Vector.Id == "" {
			return nil, fmt.Errorf("pinecone: malformed match at position %d", i)
		}
		var metadata map[string]interface{}
		if m.Vector.Metadata != nil {
			metadata = m.Vector.Metadata.AsMap()
		}
		docs = append(docs, rag.Document{
			ID:       m.Vector.Id,
			Score:    float64(m.Score),
			Metadata: metadata,
		})
	}

	s.logger.Debug("pinecone query completed",
		zap.String("host", s.host),
		zap.Int("top_k", topK),
		zap.Int("matches", len(docs)))

	return docs, nil
}

// Ping calls DescribeIndexStats
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.conn.DescribeIndexStats(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// Close closes the index connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// classify maps a data plane error onto the repository sentinels
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("pinecone: query failed: %w", err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("pinecone: query failed: %w", err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return fmt.Errorf("pinecone: %s: %w", st.Message(), context.DeadlineExceeded)
	case codes.InvalidArgument:
		if strings.Contains(strings.ToLower(st.Message()), "dimension") {
			return fmt.Errorf("pinecone: %s: %w", st.Message(), repositories.ErrDimensionMismatch)
		}
	}
	return fmt.Errorf("pinecone: %s: %s", st.Code(), st.Message())
}
