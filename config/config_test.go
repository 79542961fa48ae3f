package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"PINECONE_API_KEY":    "pc-key",
				"PINECONE_INDEX_NAME": "nutrition",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "nutrition", cfg.VectorStore.Pinecone.IndexName)
				assert.Empty(t, cfg.VectorStore.Pinecone.IndexHost)
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8000, cfg.Server.Port)
				assert.Equal(t, VectorStorePinecone, cfg.VectorStore.Backend)
				assert.Equal(t, "text-embedding-3-small", cfg.RAG.EmbeddingModel)
				assert.Equal(t, 1024, cfg.RAG.EmbeddingDimensions)
				assert.Equal(t, "gpt-4o-mini", cfg.RAG.ChatModel)
				assert.Equal(t, 0.7, cfg.RAG.Temperature)
				assert.Equal(t, 1000, cfg.RAG.MaxTokens)
				assert.False(t, cfg.RAG.EmbedUserData)
				assert.Equal(t, "warn", cfg.RAG.GuardMode)
				assert.Contains(t, cfg.CORS.AllowedOrigins, "https://longevity-alpha.vercel.app")
				assert.Len(t, cfg.CORS.AllowedOrigins, 4)
				assert.False(t, cfg.Database.IsConfigured())
				assert.False(t, cfg.QueryLog.Enabled)
				assert.False(t, cfg.RateLimit.Enabled)
				assert.Equal(t, 10, cfg.RateLimit.PerMinute)
				assert.Equal(t, 48*time.Hour, cfg.RateLimit.Retention)
			},
		},
		{
			name: "qdrant with ollama and query log",
			envVars: map[string]string{
				"ENVIRONMENT":          "production",
				"PORT":                 "9000",
				"VECTOR_STORE":         "qdrant",
				"QDRANT_HOST":          "qdrant.internal",
				"EMBEDDING_PROVIDER":   "ollama",
				"EMBEDDING_MODEL":      "nomic-embed-text",
				"EMBEDDING_DIMENSIONS": "768",
				"CHAT_PROVIDER":        "ollama",
				"CHAT_MODEL":           "llama3.2",
				"DATABASE_URL":         "postgres://u:p@db.internal:5433/longevity?sslmode=disable",
				"QUERY_LOG_ENABLED":    "true",
				"CORS_ALLOWED_ORIGINS": "https://a.example.com, ,https://b.example.com",
				"RETRIEVAL_TIMEOUT":    "3s",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
				assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
				assert.Equal(t, 768, cfg.RAG.EmbeddingDimensions)
				assert.Equal(t, 3*time.Second, cfg.RAG.RetrievalTimeout)
				assert.True(t, cfg.Database.IsConfigured())
				assert.Equal(t, "host=db.internal port=5433 database=longevity", cfg.Database.LogString())
				assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
			},
		},
		{
			name: "production with openai requires key",
			envVars: map[string]string{
				"ENVIRONMENT":         "production",
				"PINECONE_API_KEY":    "pc-key",
				"PINECONE_INDEX_HOST": "https://x.pinecone.io",
			},
			wantErr: true,
		},
		{
			name: "pinecone without index name or host",
			envVars: map[string]string{
				"VECTOR_STORE":     "pinecone",
				"PINECONE_API_KEY": "pc-key",
			},
			wantErr: true,
		},
		{
			name: "pinecone without api key",
			envVars: map[string]string{
				"PINECONE_INDEX_NAME": "nutrition",
			},
			wantErr: true,
		},
		{
			name: "pinecone with host override only",
			envVars: map[string]string{
				"PINECONE_API_KEY":    "pc-key",
				"PINECONE_INDEX_HOST": "nutrition-abc.svc.pinecone.io",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "nutrition-abc.svc.pinecone.io", cfg.VectorStore.Pinecone.IndexHost)
			},
		},
		{
			name: "unknown vector store",
			envVars: map[string]string{
				"VECTOR_STORE": "faiss",
			},
			wantErr: true,
		},
		{
			name: "query log without database",
			envVars: map[string]string{
				"PINECONE_API_KEY":    "pc-key",
				"PINECONE_INDEX_HOST": "https://x.pinecone.io",
				"QUERY_LOG_ENABLED":   "true",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment: "development",
		RAG: RAGConfig{
			EmbeddingProvider:   ProviderOpenAI,
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingDimensions: 1024,
			EmbeddingTimeout:    time.Second,
			ChatProvider:        ProviderOpenAI,
			ChatModel:           "gpt-4o-mini",
			Temperature:         0.7,
			GenerationTimeout:   time.Second,
			RetrievalTimeout:    time.Second,
			GuardMode:           "warn",
		},
		VectorStore: VectorStoreConfig{
			Backend: VectorStoreChromem,
			Chromem: ChromemConfig{Path: "db.gob", Collection: "knowledge-base"},
		},
		Observability: ObservabilityConfig{LogLevel: "info"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "zero dimensions",
			mutate:  func(c *Config) { c.RAG.EmbeddingDimensions = 0 },
			wantErr: true,
			errMsg:  "embedding dimensions must be positive",
		},
		{
			name:    "unknown chat provider",
			mutate:  func(c *Config) { c.RAG.ChatProvider = "bedrock" },
			wantErr: true,
			errMsg:  "unsupported chat provider",
		},
		{
			name:    "missing timeout",
			mutate:  func(c *Config) { c.RAG.RetrievalTimeout = 0 },
			wantErr: true,
			errMsg:  "timeouts must be positive",
		},
		{
			name:    "bad guard mode",
			mutate:  func(c *Config) { c.RAG.GuardMode = "block" },
			wantErr: true,
			errMsg:  "unsupported prompt guard mode",
		},
		{
			name: "pgvector without any database",
			mutate: func(c *Config) {
				c.VectorStore.Backend = VectorStorePgvector
				c.VectorStore.Pgvector.Table = "documents"
			},
			wantErr: true,
			errMsg:  "pgvector backend requires",
		},
		{
			name: "pgvector reusing main database",
			mutate: func(c *Config) {
				c.VectorStore.Backend = VectorStorePgvector
				c.VectorStore.Pgvector.Table = "documents"
				c.Database.Host = "localhost"
			},
		},
		{
			name: "rate limit without database",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.PerMinute = 5
			},
			wantErr: true,
			errMsg:  "rate limiting requires",
		},
		{
			name: "negative rate limit",
			mutate: func(c *Config) {
				c.RateLimit.Enabled = true
				c.RateLimit.PerHour = -1
				c.Database.Host = "localhost"
			},
			wantErr: true,
			errMsg:  "rate limits cannot be negative",
		},
		{
			name:    "missing log level",
			mutate:  func(c *Config) { c.Observability.LogLevel = "" },
			wantErr: true,
			errMsg:  "log level is required",
		},
		{
			name: "unknown trace exporter",
			mutate: func(c *Config) {
				c.Observability.TracingEnabled = true
				c.Observability.TraceExporter = "jaeger"
			},
			wantErr: true,
			errMsg:  "unsupported trace exporter",
		},
		{
			name: "trace ratio out of range",
			mutate: func(c *Config) {
				c.Observability.TracingEnabled = true
				c.Observability.TraceExporter = "otlphttp"
				c.Observability.TraceSampling = 1.5
			},
			wantErr: true,
			errMsg:  "trace sample ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	assert.True(t, (&Config{Environment: "production"}).IsProduction())
	assert.True(t, (&Config{Environment: "prod"}).IsProduction())
	assert.False(t, (&Config{Environment: "development"}).IsProduction())
	assert.True(t, (&Config{Environment: "dev"}).IsDevelopment())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "longevity",
		Password: "secret",
		Database: "longevity",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=localhost port=5432 user=longevity password=secret dbname=longevity sslmode=disable", cfg.DSN())
	assert.NotContains(t, cfg.LogString(), "secret")

	url := DatabaseConfig{ConnectionString: "postgres://u:p@h/db"}
	assert.Equal(t, "postgres://u:p@h/db", url.DSN())
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "0.0.0.0", Port: 8000}
	assert.Equal(t, "0.0.0.0:8000", cfg.Address())
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue int
		want         int
	}{
		{"valid int", "42", 10, 42},
		{"empty value", "", 10, 10},
		{"invalid int", "not-a-number", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_INT", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsInt("TEST_INT", tt.defaultValue))
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	os.Clearenv()
	assert.True(t, getEnvAsBool("TEST_BOOL", true))
	os.Setenv("TEST_BOOL", "false")
	assert.False(t, getEnvAsBool("TEST_BOOL", true))
	os.Setenv("TEST_BOOL", "maybe")
	assert.True(t, getEnvAsBool("TEST_BOOL", true))
}

func TestGetEnvAsFloat(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, 0.7, getEnvAsFloat("TEST_FLOAT", 0.7))
	os.Setenv("TEST_FLOAT", "0.2")
	assert.Equal(t, 0.2, getEnvAsFloat("TEST_FLOAT", 0.7))
}

func TestGetEnvAsDuration(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, time.Second, getEnvAsDuration("TEST_DURATION", time.Second))
	os.Setenv("TEST_DURATION", "250ms")
	assert.Equal(t, 250*time.Millisecond, getEnvAsDuration("TEST_DURATION", time.Second))
	os.Setenv("TEST_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvAsDuration("TEST_DURATION", time.Second))
}

func TestGetEnvAsSlice(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, []string{"a"}, getEnvAsSlice("TEST_SLICE", []string{"a"}))
	os.Setenv("TEST_SLICE", " x , y ,")
	assert.Equal(t, []string{"x", "y"}, getEnvAsSlice("TEST_SLICE", nil))
	os.Setenv("TEST_SLICE", " , ")
	assert.Equal(t, []string{"a"}, getEnvAsSlice("TEST_SLICE", []string{"a"}))
}
