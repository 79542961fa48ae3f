// Package qdrant queries a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/repositories"
)

const storeName = "qdrant"

// Config holds the connection settings
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// client is the subset of *qdrant.Client the store needs
type client interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// Store implements repositories.VectorStore for Qdrant
type Store struct {
	client     client
	collection string
	logger     *zap.Logger
}

var _ repositories.VectorStore = (*Store)(nil)

// NewStore dials Qdrant. The gRPC connection is established lazily.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("fail to create qdrant client: %w", err)
	}
	return newStore(c, cfg.Collection, logger), nil
}

func newStore(c client, collection string, logger *zap.Logger) *Store {
	return &Store{client: c, collection: collection, logger: logger}
}

// Name returns the backend name
func (s *Store) Name() string {
	return storeName
}

// Query runs a dense-vector query with payloads
func (s *Store) Query(ctx context.Context, vector []float32, topK int) ([]rag.Document, error) {
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if isDimensionError(err) {
			return nil, fmt.Errorf("qdrant: %s: %w", status.Convert(err).Message(), repositories.ErrDimensionMismatch)
		}
		return nil, fmt.Errorf("qdrant: query failed: %w", err)
	}

	docs := make([]rag.Document, 0, len(points))
	for _, p := range points {
		id := pointID(p.GetId())
		if id == "" {
			return nil, errors.New("qdrant: point without id")
		}
		docs = append(docs, rag.Document{
			ID:       id,
			Score:    float64(p.GetScore()),
			Metadata: payloadToMap(p.GetPayload()),
		})
	}

	s.logger.Debug("qdrant query completed",
		zap.String("collection", s.collection),
		zap.Int("matches", len(docs)))
	return docs, nil
}

// Ping calls the Qdrant health endpoint
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the gRPC connection
func (s *Store) Close() error {
	return s.client.Close()
}

func isDimensionError(err error) bool {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.InvalidArgument {
		return false
	}
	return strings.Contains(strings.ToLower(st.Message()), "dimension")
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	if _, ok := id.GetPointIdOptions().(*qdrant.PointId_Num); ok {
		return strconv.FormatUint(id.GetNum(), 10)
	}
	return ""
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = valueToInterface(v)
	}
	return out
}

func valueToInterface(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return payloadToMap(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]interface{}, 0, len(values))
		for _, item := range values {
			list = append(list, valueToInterface(item))
		}
		return list
	default:
		return nil
	}
}
