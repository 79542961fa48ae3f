package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/longevity/longevity-backend/config"
	"github.com/longevity/longevity-backend/internal/observability"
	"github.com/longevity/longevity-backend/internal/prompt"
	"github.com/longevity/longevity-backend/repositories"
	"github.com/longevity/longevity-backend/repositories/postgres"
	"github.com/longevity/longevity-backend/repositories/vectorstore"
	"github.com/longevity/longevity-backend/services/embedding"
	"github.com/longevity/longevity-backend/services/generation"
	"github.com/longevity/longevity-backend/services/providers"
	"github.com/longevity/longevity-backend/services/providers/ollama"
	"github.com/longevity/longevity-backend/services/providers/openai"
	"github.com/longevity/longevity-backend/services/query"
	"github.com/longevity/longevity-backend/services/querylog"
	"github.com/longevity/longevity-backend/services/ratelimit"
	"github.com/longevity/longevity-backend/services/retrieval"
	"go.uber.org/zap"
)

const queryLogStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when no database is configured
	Logger *zap.Logger
	Tracer *observability.TracerProvider

	// Remote clients
	Providers   *providers.Registry
	VectorStore repositories.VectorStore

	// Services
	Guard      *prompt.Guard
	Embedding  *embedding.Service
	Retrieval  *retrieval.Service
	Generation *generation.Service
	Query      *query.Service
	QueryLogs  *querylog.Service // nil when the query log is disabled
	RateLimit  *ratelimit.Service // nil when rate limiting is disabled

	stopCleanup context.CancelFunc
}

// NewDependencies creates and wires up all application dependencies.
// Remote clients are built once here and injected into the services.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	steps := []struct {
		name string
		init func(context.Context) error
	}{
		{"tracing", deps.initTracing},
		{"database", deps.initDatabase},
		{"providers", deps.initProviders},
		{"vector store", deps.initVectorStore},
		{"query log", deps.initQueryLog},
		{"rate limit", deps.initRateLimit},
		{"services", deps.initServices},
	}

	for _, step := range steps {
		if err := step.init(ctx); err != nil {
			_ = deps.Close(ctx)
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("vector_store", cfg.VectorStore.Backend),
		zap.String("embedding_provider", cfg.RAG.EmbeddingProvider),
		zap.String("chat_provider", cfg.RAG.ChatProvider),
		zap.Strings("providers", deps.Providers.Names()))
	return deps, nil
}

func (d *Dependencies) initTracing(ctx context.Context) error {
	tp, err := observability.NewTracerProvider(ctx, d.Config.Observability, d.Logger)
	if err != nil {
		return err
	}
	d.Tracer = tp
	return nil
}

// initDatabase opens PostgreSQL when configured. The pool serves the query
// log and, without a dedicated DSN, the pgvector store.
func (d *Dependencies) initDatabase(ctx context.Context) error {
	if !d.Config.Database.IsConfigured() {
		d.Logger.Info("no database configured")
		return nil
	}

	db, err := postgres.NewDB(d.Config.Database, d.Logger)
	if err != nil {
		return err
	}
	d.DB = db
	return nil
}

// initProviders registers the providers selected for embedding and chat
func (d *Dependencies) initProviders(ctx context.Context) error {
	registry := providers.NewRegistry()
	rag := d.Config.RAG

	for _, name := range []string{rag.EmbeddingProvider, rag.ChatProvider} {
		if _, err := registry.Chat(name); err == nil {
			continue
		}

		switch name {
		case config.ProviderOpenAI:
			if d.Config.Providers.OpenAI.APIKey == "" {
				d.Logger.Warn("OPENAI_API_KEY is not set, OpenAI calls will fail")
			}
			adapter := openai.NewOpenAIAdapter(providers.ProviderConfig{
				APIKey:  d.Config.Providers.OpenAI.APIKey,
				BaseURL: d.Config.Providers.OpenAI.BaseURL,
				OrgID:   d.Config.Providers.OpenAI.OrgID,
				Timeout: d.Config.Providers.OpenAI.Timeout,
			})
			if err := register(registry, adapter); err != nil {
				return err
			}

		case config.ProviderOllama:
			adapter := ollama.NewAdapter(providers.ProviderConfig{
				BaseURL: d.Config.Providers.Ollama.BaseURL,
				Timeout: d.Config.Providers.Ollama.Timeout,
			})
			if err := register(registry, adapter); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unsupported provider %q", name)
		}

		d.Logger.Info("provider registered", zap.String("provider", name))
	}

	d.Providers = registry
	return nil
}

type chatAndEmbedder interface {
	providers.ChatProvider
	providers.EmbeddingProvider
}

func register(registry *providers.Registry, p chatAndEmbedder) error {
	if err := registry.RegisterChat(p); err != nil {
		return err
	}
	return registry.RegisterEmbedding(p)
}

func (d *Dependencies) initVectorStore(ctx context.Context) error {
	var shared *sql.DB
	if d.DB != nil {
		shared = d.DB.DB
	}

	store, err := vectorstore.New(ctx, d.Config.VectorStore, shared, d.Logger)
	if err != nil {
		return err
	}
	d.VectorStore = store
	return nil
}

func (d *Dependencies) initQueryLog(ctx context.Context) error {
	if !d.Config.QueryLog.Enabled {
		return nil
	}
	if d.DB == nil {
		return fmt.Errorf("query log requires a database")
	}

	if err := d.DB.InitQueryLogSchema(ctx); err != nil {
		return err
	}

	svc := querylog.NewService(postgres.NewQueryLogRepository(d.DB, d.Logger), d.Logger, querylog.Config{
		BufferSize:  d.Config.QueryLog.BufferSize,
		WorkerCount: d.Config.QueryLog.WorkerCount,
	})
	if err := svc.Start(); err != nil {
		return err
	}
	d.QueryLogs = svc
	return nil
}

func (d *Dependencies) initRateLimit(ctx context.Context) error {
	rl := d.Config.RateLimit
	if !rl.Enabled {
		return nil
	}
	if d.DB == nil {
		return fmt.Errorf("rate limiting requires a database")
	}

	if err := d.DB.InitRateLimitSchema(ctx); err != nil {
		return err
	}

	d.RateLimit = ratelimit.NewService(d.DB.DB, ratelimit.Limits{
		PerMinute: rl.PerMinute,
		PerHour:   rl.PerHour,
		PerDay:    rl.PerDay,
	}, d.Logger)

	if rl.CleanupInterval > 0 {
		cleanupCtx, cancel := context.WithCancel(context.Background())
		d.stopCleanup = cancel
		go d.RateLimit.StartCleanupWorker(cleanupCtx, rl.CleanupInterval, rl.Retention)
	}
	return nil
}

func (d *Dependencies) initServices(ctx context.Context) error {
	rag := d.Config.RAG

	mode, err := prompt.ParseMode(rag.GuardMode)
	if err != nil {
		return err
	}
	d.Guard = prompt.NewGuard(mode, d.Logger)

	embedder, err := d.Providers.Embedding(rag.EmbeddingProvider)
	if err != nil {
		return fmt.Errorf("embedding provider %q: %w", rag.EmbeddingProvider, err)
	}
	chat, err := d.Providers.Chat(rag.ChatProvider)
	if err != nil {
		return fmt.Errorf("chat provider %q: %w", rag.ChatProvider, err)
	}

	d.Embedding = embedding.NewService(embedder, embedding.Config{
		Model:      rag.EmbeddingModel,
		Dimensions: rag.EmbeddingDimensions,
		Timeout:    rag.EmbeddingTimeout,
	}, d.Logger)

	d.Retrieval = retrieval.NewService(d.VectorStore, rag.EmbeddingDimensions, rag.RetrievalTimeout, d.Logger)

	d.Generation = generation.NewService(chat, d.Guard, generation.Config{
		Model:       rag.ChatModel,
		Temperature: rag.Temperature,
		MaxTokens:   rag.MaxTokens,
		Timeout:     rag.GenerationTimeout,
	}, d.Logger)

	// A nil *querylog.Service must not become a non-nil interface
	var recorder query.Recorder
	if d.QueryLogs != nil {
		recorder = d.QueryLogs
	}

	d.Query = query.NewService(d.Embedding, d.Retrieval, d.Generation, recorder, query.Config{
		EmbedUserData: rag.EmbedUserData,
		VectorStore:   d.Config.VectorStore.Backend,
	}, d.Logger)

	return nil
}

// Close gracefully shuts down all dependencies. Safe to call on a partially
// initialized value.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopCleanup != nil {
		d.stopCleanup()
	}

	// Drain the query log before its database goes away
	if d.QueryLogs != nil {
		if err := d.QueryLogs.Stop(queryLogStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop query log: %w", err))
		}
	}

	if d.VectorStore != nil {
		if err := d.VectorStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close vector store: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if err := d.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
