package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/longevity/longevity-backend/config"
	"github.com/longevity/longevity-backend/repositories"
	"github.com/longevity/longevity-backend/repositories/vectorstore/chromem"
	"github.com/longevity/longevity-backend/repositories/vectorstore/milvus"
	"github.com/longevity/longevity-backend/repositories/vectorstore/pgvector"
	"github.com/longevity/longevity-backend/repositories/vectorstore/pinecone"
	"github.com/longevity/longevity-backend/repositories/vectorstore/qdrant"
)

// New builds the backend selected by cfg.Backend. shared is the main
// database pool, reused by pgvector when no dedicated DSN is configured; it
// may be nil.
func New(ctx context.Context, cfg config.VectorStoreConfig, shared *sql.DB, logger *zap.Logger) (repositories.VectorStore, error) {
	logger = logger.With(zap.String("vector_store", cfg.Backend))

	switch cfg.Backend {
	case config.VectorStorePinecone:
		return pinecone.NewStore(ctx, pinecone.Config{
			APIKey:    cfg.Pinecone.APIKey,
			IndexName: cfg.Pinecone.IndexName,
			IndexHost: cfg.Pinecone.IndexHost,
			Namespace: cfg.Pinecone.Namespace,
		}, logger)

	case config.VectorStoreQdrant:
		return qdrant.NewStore(qdrant.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
		}, logger)

	case config.VectorStorePgvector:
		if cfg.Pgvector.DSN != "" {
			return pgvector.Open(ctx, cfg.Pgvector.DSN, cfg.Pgvector.Table, logger)
		}
		if shared == nil {
			return nil, fmt.Errorf("pgvector backend requires PGVECTOR_DSN or a database connection")
		}
		return pgvector.NewStore(shared, cfg.Pgvector.Table, logger), nil

	case config.VectorStoreMilvus:
		return milvus.NewStore(ctx, milvus.Config{
			Address:      cfg.Milvus.Address,
			Username:     cfg.Milvus.Username,
			Password:     cfg.Milvus.Password,
			Database:     cfg.Milvus.Database,
			Collection:   cfg.Milvus.Collection,
			VectorField:  cfg.Milvus.VectorField,
			OutputFields: cfg.Milvus.OutputFields,
		}, logger)

	case config.VectorStoreChromem:
		return chromem.Open(cfg.Chromem.Path, cfg.Chromem.EncryptionKey, cfg.Chromem.Collection, logger)

	default:
		return nil, fmt.Errorf("unsupported vector store %q", cfg.Backend)
	}
}
