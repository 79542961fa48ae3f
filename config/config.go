package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported provider and vector store names
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	VectorStorePinecone = "pinecone"
	VectorStoreQdrant   = "qdrant"
	VectorStorePgvector = "pgvector"
	VectorStoreMilvus   = "milvus"
	VectorStoreChromem  = "chromem"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	CORS          CORSConfig
	Providers     ProvidersConfig
	RAG           RAGConfig
	VectorStore   VectorStoreConfig
	Database      DatabaseConfig
	QueryLog      QueryLogConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// CORSConfig lists the browser origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

// ProvidersConfig holds model provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig
	Ollama OllamaConfig
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	OrgID   string
	Timeout time.Duration
}

// OllamaConfig holds Ollama provider configuration
type OllamaConfig struct {
	BaseURL string
	Timeout time.Duration
}

// RAGConfig drives the question answering pipeline
type RAGConfig struct {
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingTimeout    time.Duration

	ChatProvider      string
	ChatModel         string
	Temperature       float64
	MaxTokens         int
	GenerationTimeout time.Duration

	RetrievalTimeout time.Duration

	// EmbedUserData appends the user data summary to the embedded text
	EmbedUserData bool

	// GuardMode is one of off, warn, strip
	GuardMode string
}

// VectorStoreConfig selects and configures the nearest-neighbour index
type VectorStoreConfig struct {
	Backend  string
	Pinecone PineconeConfig
	Qdrant   QdrantConfig
	Pgvector PgvectorConfig
	Milvus   MilvusConfig
	Chromem  ChromemConfig
}

// PineconeConfig holds Pinecone index settings
type PineconeConfig struct {
	APIKey    string
	IndexName string
	IndexHost string // optional, skips the index lookup; e.g. nutrition-abc123.svc.us-east-1.pinecone.io
	Namespace string
}

// QdrantConfig holds Qdrant gRPC settings
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// PgvectorConfig holds settings for a Postgres table with a vector column.
// When DSN is empty the main database connection is used.
type PgvectorConfig struct {
	DSN   string
	Table string
}

// MilvusConfig holds Milvus settings
type MilvusConfig struct {
	Address      string
	Username     string
	Password     string
	Database     string
	Collection   string
	VectorField  string
	OutputFields []string
}

// ChromemConfig points at an exported chromem-go database file
type ChromemConfig struct {
	Path          string
	EncryptionKey string
	Collection    string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// QueryLogConfig controls the asynchronous query log
type QueryLogConfig struct {
	Enabled     bool
	BufferSize  int
	WorkerCount int
}

// RateLimitConfig bounds /ask requests per client address.
// Zero disables a window.
type RateLimitConfig struct {
	Enabled         bool
	PerMinute       int
	PerHour         int
	PerDay          int
	CleanupInterval time.Duration
	Retention       time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	ServiceName    string
	TracingEnabled bool
	TraceExporter  string // stdout or otlphttp
	TraceEndpoint  string
	TraceInsecure  bool
	TraceSampling  float64
}

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://localhost:3002",
	"https://longevity-alpha.vercel.app",
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 90*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				OrgID:   getEnv("OPENAI_ORG_ID", ""),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			},
			Ollama: OllamaConfig{
				BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
				Timeout: getEnvAsDuration("OLLAMA_TIMEOUT", 120*time.Second),
			},
		},
		RAG: RAGConfig{
			EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", ProviderOpenAI),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1024),
			EmbeddingTimeout:    getEnvAsDuration("EMBEDDING_TIMEOUT", 10*time.Second),
			ChatProvider:        getEnv("CHAT_PROVIDER", ProviderOpenAI),
			ChatModel:           getEnv("CHAT_MODEL", "gpt-4o-mini"),
			Temperature:         getEnvAsFloat("CHAT_TEMPERATURE", 0.7),
			MaxTokens:           getEnvAsInt("CHAT_MAX_TOKENS", 1000),
			GenerationTimeout:   getEnvAsDuration("GENERATION_TIMEOUT", 60*time.Second),
			RetrievalTimeout:    getEnvAsDuration("RETRIEVAL_TIMEOUT", 10*time.Second),
			EmbedUserData:       getEnvAsBool("RAG_EMBED_USER_DATA", false),
			GuardMode:           getEnv("PROMPT_GUARD_MODE", "warn"),
		},
		VectorStore: VectorStoreConfig{
			Backend: getEnv("VECTOR_STORE", VectorStorePinecone),
			Pinecone: PineconeConfig{
				APIKey:    getEnv("PINECONE_API_KEY", ""),
				IndexName: getEnv("PINECONE_INDEX_NAME", ""),
				IndexHost: getEnv("PINECONE_INDEX_HOST", ""),
				Namespace: getEnv("PINECONE_NAMESPACE", ""),
			},
			Qdrant: QdrantConfig{
				Host:       getEnv("QDRANT_HOST", "localhost"),
				Port:       getEnvAsInt("QDRANT_PORT", 6334),
				APIKey:     getEnv("QDRANT_API_KEY", ""),
				UseTLS:     getEnvAsBool("QDRANT_USE_TLS", false),
				Collection: getEnv("QDRANT_COLLECTION", "nutrition"),
			},
			Pgvector: PgvectorConfig{
				DSN:   getEnv("PGVECTOR_DSN", ""),
				Table: getEnv("PGVECTOR_TABLE", "documents"),
			},
			Milvus: MilvusConfig{
				Address:      getEnv("MILVUS_ADDRESS", "localhost:19530"),
				Username:     getEnv("MILVUS_USERNAME", ""),
				Password:     getEnv("MILVUS_PASSWORD", ""),
				Database:     getEnv("MILVUS_DATABASE", ""),
				Collection:   getEnv("MILVUS_COLLECTION", "nutrition"),
				VectorField:  getEnv("MILVUS_VECTOR_FIELD", "embedding"),
				OutputFields: getEnvAsSlice("MILVUS_OUTPUT_FIELDS", []string{"content", "source"}),
			},
			Chromem: ChromemConfig{
				Path:          getEnv("CHROMEM_PATH", "./db.gob"),
				EncryptionKey: getEnv("CHROMEM_ENCRYPTION_KEY", ""),
				Collection:    getEnv("CHROMEM_COLLECTION", "knowledge-base"),
			},
		},
		Database: loadDatabaseConfig(),
		QueryLog: QueryLogConfig{
			Enabled:     getEnvAsBool("QUERY_LOG_ENABLED", false),
			BufferSize:  getEnvAsInt("QUERY_LOG_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("QUERY_LOG_WORKERS", 2),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvAsBool("RATE_LIMIT_ENABLED", false),
			PerMinute:       getEnvAsInt("RATE_LIMIT_PER_MINUTE", 10),
			PerHour:         getEnvAsInt("RATE_LIMIT_PER_HOUR", 100),
			PerDay:          getEnvAsInt("RATE_LIMIT_PER_DAY", 0),
			CleanupInterval: getEnvAsDuration("RATE_LIMIT_CLEANUP_INTERVAL", time.Hour),
			Retention:       getEnvAsDuration("RATE_LIMIT_RETENTION", 48*time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			ServiceName:    getEnv("SERVICE_NAME", "longevity-backend"),
			TracingEnabled: getEnvAsBool("TRACING_ENABLED", false),
			TraceExporter:  getEnv("TRACING_EXPORTER", "stdout"),
			TraceEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			TraceInsecure:  getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			TraceSampling:  getEnvAsFloat("TRACING_SAMPLE_RATIO", 1.0),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := c.RAG.validate(); err != nil {
		return err
	}

	if err := c.VectorStore.validate(); err != nil {
		return err
	}

	usesOpenAI := c.RAG.EmbeddingProvider == ProviderOpenAI || c.RAG.ChatProvider == ProviderOpenAI
	if usesOpenAI && c.IsProduction() && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required in production when the openai provider is selected")
	}

	if c.QueryLog.Enabled {
		if !c.Database.IsConfigured() {
			return fmt.Errorf("query log requires DATABASE_URL or DB_HOST")
		}
		if c.QueryLog.WorkerCount <= 0 || c.QueryLog.BufferSize <= 0 {
			return fmt.Errorf("query log workers and buffer size must be positive")
		}
	}

	if c.RateLimit.Enabled {
		if !c.Database.IsConfigured() {
			return fmt.Errorf("rate limiting requires DATABASE_URL or DB_HOST")
		}
		if c.RateLimit.PerMinute < 0 || c.RateLimit.PerHour < 0 || c.RateLimit.PerDay < 0 {
			return fmt.Errorf("rate limits cannot be negative")
		}
	}

	if c.VectorStore.Backend == VectorStorePgvector && c.VectorStore.Pgvector.DSN == "" && !c.Database.IsConfigured() {
		return fmt.Errorf("pgvector backend requires PGVECTOR_DSN or a database configuration")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if c.Observability.TracingEnabled {
		switch c.Observability.TraceExporter {
		case "stdout", "otlphttp":
		default:
			return fmt.Errorf("unsupported trace exporter %q", c.Observability.TraceExporter)
		}
		if c.Observability.TraceSampling < 0 || c.Observability.TraceSampling > 1 {
			return fmt.Errorf("trace sample ratio must be between 0 and 1")
		}
	}

	return nil
}

func (r *RAGConfig) validate() error {
	if !isProvider(r.EmbeddingProvider) {
		return fmt.Errorf("unsupported embedding provider %q", r.EmbeddingProvider)
	}
	if !isProvider(r.ChatProvider) {
		return fmt.Errorf("unsupported chat provider %q", r.ChatProvider)
	}
	if r.EmbeddingModel == "" || r.ChatModel == "" {
		return fmt.Errorf("embedding and chat models are required")
	}
	if r.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", r.EmbeddingDimensions)
	}
	if r.EmbeddingTimeout <= 0 || r.RetrievalTimeout <= 0 || r.GenerationTimeout <= 0 {
		return fmt.Errorf("embedding, retrieval and generation timeouts must be positive")
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("chat temperature must be between 0 and 2")
	}
	switch r.GuardMode {
	case "off", "warn", "strip":
	default:
		return fmt.Errorf("unsupported prompt guard mode %q", r.GuardMode)
	}
	return nil
}

func (v *VectorStoreConfig) validate() error {
	switch v.Backend {
	case VectorStorePinecone:
		if v.Pinecone.APIKey == "" {
			return fmt.Errorf("PINECONE_API_KEY is required for the pinecone backend")
		}
		if v.Pinecone.IndexName == "" && v.Pinecone.IndexHost == "" {
			return fmt.Errorf("PINECONE_INDEX_NAME or PINECONE_INDEX_HOST is required for the pinecone backend")
		}
	case VectorStoreQdrant:
		if v.Qdrant.Host == "" || v.Qdrant.Collection == "" {
			return fmt.Errorf("QDRANT_HOST and QDRANT_COLLECTION are required for the qdrant backend")
		}
	case VectorStorePgvector:
		if v.Pgvector.Table == "" {
			return fmt.Errorf("PGVECTOR_TABLE is required for the pgvector backend")
		}
	case VectorStoreMilvus:
		if v.Milvus.Address == "" || v.Milvus.Collection == "" {
			return fmt.Errorf("MILVUS_ADDRESS and MILVUS_COLLECTION are required for the milvus backend")
		}
	case VectorStoreChromem:
		if v.Chromem.Path == "" || v.Chromem.Collection == "" {
			return fmt.Errorf("CHROMEM_PATH and CHROMEM_COLLECTION are required for the chromem backend")
		}
	default:
		return fmt.Errorf("unsupported vector store %q", v.Backend)
	}
	return nil
}

func isProvider(name string) bool {
	return name == ProviderOpenAI || name == ProviderOllama
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// IsConfigured reports whether a database connection was requested
func (c *DatabaseConfig) IsConfigured() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// The database is optional; with neither set Host stays empty.
func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}

	pool.Host = getEnv("DB_HOST", "")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "longevity")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "longevity")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma separated value, dropping blanks
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
