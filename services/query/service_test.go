package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/models"
	"github.com/longevity/longevity-backend/services"
	"github.com/longevity/longevity-backend/services/embedding"
	"github.com/longevity/longevity-backend/services/generation"
	"github.com/longevity/longevity-backend/services/providers"
	"github.com/longevity/longevity-backend/services/querylog"
	"github.com/longevity/longevity-backend/services/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const dims = 4

// MockEmbeddingProvider is a mock implementation of providers.EmbeddingProvider
type MockEmbeddingProvider struct {
	mock.Mock
}

func (m *MockEmbeddingProvider) Name() string { return "mock-embed" }

func (m *MockEmbeddingProvider) Embed(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*providers.EmbeddingResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockVectorStore is a mock implementation of repositories.VectorStore
type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) Name() string { return "mock-store" }

func (m *MockVectorStore) Query(ctx context.Context, vector []float32, topK int) ([]rag.Document, error) {
	args := m.Called(ctx, vector, topK)
	if docs := args.Get(0); docs != nil {
		return docs.([]rag.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockVectorStore) Ping(ctx context.Context) error { return nil }

func (m *MockVectorStore) Close() error { return nil }

// MockChatProvider records every request it receives
type MockChatProvider struct {
	mock.Mock
	mu       sync.Mutex
	requests []*providers.ChatRequest
}

func (m *MockChatProvider) Name() string { return "mock-chat" }

func (m *MockChatProvider) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*providers.ChatResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatProvider) LastUserPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ""
	}
	msgs := m.requests[len(m.requests)-1].Messages
	return msgs[len(msgs)-1].Content
}

// MockRecorder collects query log entries
type MockRecorder struct {
	mu      sync.Mutex
	entries []*models.QueryLog
	err     error
}

func (m *MockRecorder) Record(entry *models.QueryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockRecorder) Entries() []*models.QueryLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.QueryLog(nil), m.entries...)
}

type fixture struct {
	embedder *MockEmbeddingProvider
	store    *MockVectorStore
	chat     *MockChatProvider
	recorder *MockRecorder
	service  *Service
}

func newFixture(t *testing.T, embedTimeout time.Duration, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		embedder: new(MockEmbeddingProvider),
		store:    new(MockVectorStore),
		chat:     new(MockChatProvider),
		recorder: new(MockRecorder),
	}
	logger := zap.NewNop()

	f.service = NewService(
		embedding.NewService(f.embedder, embedding.Config{Model: "embed", Dimensions: dims, Timeout: embedTimeout}, logger),
		retrieval.NewService(f.store, dims, time.Second, logger),
		generation.NewService(f.chat, nil, generation.Config{Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 1000, Timeout: time.Second}, logger),
		f.recorder,
		cfg,
		logger,
	)
	return f
}

var queryVector = []float32{0.1, 0.2, 0.3, 0.4}

func (f *fixture) embedOK() {
	f.embedder.On("Embed", mock.Anything, mock.Anything).
		Return(&providers.EmbeddingResponse{Embedding: queryVector}, nil)
}

func (f *fixture) retrieve(docs []rag.Document) {
	f.store.On("Query", mock.Anything, queryVector, rag.TopK).Return(docs, nil)
}

func (f *fixture) answer(text string) {
	f.chat.On("ChatCompletion", mock.Anything, mock.Anything).Return(&providers.ChatResponse{
		Model: "gpt-4o-mini",
		Choices: []providers.Choice{{
			Message:      providers.Message{Role: providers.RoleAssistant, Content: text},
			FinishReason: providers.FinishReasonStop,
		}},
		Usage: providers.Usage{PromptTokens: 300, CompletionTokens: 80},
	}, nil)
}

func textDoc(id string, score float64, text string) rag.Document {
	return rag.Document{ID: id, Score: score, Metadata: map[string]interface{}{"text": text}}
}

var proteinDocs = []rag.Document{
	textDoc("doc-1", 0.92, "Per un adulto sano si raccomandano 0,8 g di proteine per kg di peso corporeo."),
	textDoc("doc-2", 0.88, "Negli anziani il fabbisogno sale a 1,0-1,2 g/kg."),
	textDoc("doc-3", 0.81, "Gli sportivi di resistenza possono arrivare a 1,4 g/kg."),
}

func TestHandle_AnswersFromThreePassages(t *testing.T) {
	f := newFixture(t, time.Second, Config{VectorStore: "mock-store"})
	f.embedOK()
	f.retrieve(proteinDocs)
	f.answer("Circa 0,8 g di proteine per kg di peso al giorno.")

	question := "Qual è l'apporto giornaliero raccomandato di proteine per un adulto?"
	result, err := f.service.Handle(context.Background(), &Request{Question: question, RequestID: "req-a"})

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)
	assert.True(t, result.Answered())
	assert.Equal(t, "Circa 0,8 g di proteine per kg di peso al giorno.", result.Answer.Text)
	assert.Equal(t, "req-a", result.RequestID)
	require.Len(t, result.Sources, 3)

	userPrompt := f.chat.LastUserPrompt()
	for _, doc := range proteinDocs {
		assert.Contains(t, userPrompt, doc.Text())
	}
	assert.Contains(t, userPrompt, "Domanda dell'utente: "+question)

	f.embedder.AssertCalled(t, "Embed", mock.Anything, mock.MatchedBy(func(req *providers.EmbeddingRequest) bool {
		return req.Input == question
	}))

	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, string(StateCompleted), entries[0].State)
	assert.Equal(t, []string{"doc-1", "doc-2", "doc-3"}, []string(entries[0].SourceIDs))
	assert.Equal(t, "mock-store", entries[0].VectorStore)
	require.NotNil(t, entries[0].PromptTokens)
	assert.Equal(t, 300, *entries[0].PromptTokens)
}

func TestHandle_NoDocuments(t *testing.T) {
	f := newFixture(t, time.Second, Config{})
	f.embedOK()
	f.retrieve([]rag.Document{})

	result, err := f.service.Handle(context.Background(), &Request{Question: "Domanda senza documenti pertinenti"})

	require.NoError(t, err)
	assert.Equal(t, StateNoEvidenceFound, result.State)
	assert.False(t, result.Answered())
	assert.Empty(t, result.Answer.Text)
	assert.NotEmpty(t, result.RequestID)
	f.chat.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)

	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, string(StateNoEvidenceFound), entries[0].State)
}

func TestHandle_DocumentsWithoutText(t *testing.T) {
	f := newFixture(t, time.Second, Config{})
	f.embedOK()
	f.retrieve([]rag.Document{
		{ID: "a", Score: 0.9, Metadata: map[string]interface{}{"title": "Proteine"}},
		{ID: "b", Score: 0.8, Metadata: map[string]interface{}{"text": "   "}},
		{ID: "c", Score: 0.7},
	})

	result, err := f.service.Handle(context.Background(), &Request{Question: "Quante proteine?"})

	require.NoError(t, err)
	assert.Equal(t, StateNoEvidenceFound, result.State)
	f.chat.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)
}

func TestHandle_PrefersTextOverContent(t *testing.T) {
	f := newFixture(t, time.Second, Config{})
	f.embedOK()
	f.retrieve([]rag.Document{{
		ID:    "a",
		Score: 0.9,
		Metadata: map[string]interface{}{
			"text":    "testo preferito",
			"content": "contenuto ignorato",
		},
	}})
	f.answer("ok")

	_, err := f.service.Handle(context.Background(), &Request{Question: "Quante proteine?"})

	require.NoError(t, err)
	assert.Contains(t, f.chat.LastUserPrompt(), "testo preferito")
	assert.NotContains(t, f.chat.LastUserPrompt(), "contenuto ignorato")
}

func TestHandle_EmptyQuestion(t *testing.T) {
	for _, question := range []string{"", "   "} {
		f := newFixture(t, time.Second, Config{})

		result, err := f.service.Handle(context.Background(), &Request{Question: question})

		require.Error(t, err)
		assert.True(t, services.IsValidationError(err))
		assert.Equal(t, StateFailed, result.State)
		assert.Equal(t, services.ErrorTypeValidation, result.FailureKind)
		f.embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
		f.store.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
		f.chat.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)
	}
}

func TestHandle_EmbeddingTimeout(t *testing.T) {
	f := newFixture(t, 20*time.Millisecond, Config{})
	f.embedder.On("Embed", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	result, err := f.service.Handle(context.Background(), &Request{Question: "Quante proteine?"})

	require.Error(t, err)
	assert.True(t, services.IsUpstreamUnavailableError(err))
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, services.ErrorTypeUpstreamUnavailable, result.FailureKind)
	f.store.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
	f.chat.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)

	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].FailureKind)
	assert.Equal(t, string(services.ErrorTypeUpstreamUnavailable), *entries[0].FailureKind)
}

func TestHandle_UserDataInPrompt(t *testing.T) {
	f := newFixture(t, time.Second, Config{})
	f.embedOK()
	f.retrieve(proteinDocs)
	f.answer("Con 70 kg ti servono circa 56 g di proteine.")

	age, weight, height := 25, 70.0, 180.0
	question := "Quante proteine devo mangiare?"
	result, err := f.service.Handle(context.Background(), &Request{
		Question: question,
		UserData: &rag.UserData{Age: &age, Weight: &weight, Height: &height},
	})

	require.NoError(t, err)
	assert.Equal(t, StateCompleted, result.State)

	userPrompt := f.chat.LastUserPrompt()
	assert.Contains(t, userPrompt, "Età: 25 anni")
	assert.Contains(t, userPrompt, "Peso: 70 kg")
	assert.Contains(t, userPrompt, "Altezza: 180 cm")

	// user data sits outside the evidence block
	closeAt := strings.Index(userPrompt, "</contesto>")
	require.NotEqual(t, -1, closeAt)
	assert.Greater(t, strings.Index(userPrompt, "Età: 25 anni"), closeAt)

	// retrieval is driven by the question alone by default
	f.embedder.AssertCalled(t, "Embed", mock.Anything, mock.MatchedBy(func(req *providers.EmbeddingRequest) bool {
		return req.Input == question
	}))
}

func TestHandle_EmbedUserData(t *testing.T) {
	f := newFixture(t, time.Second, Config{EmbedUserData: true})
	f.embedOK()
	f.retrieve(proteinDocs)
	f.answer("ok")

	age := 25
	_, err := f.service.Handle(context.Background(), &Request{
		Question: "Quante proteine?",
		UserData: &rag.UserData{Age: &age},
	})

	require.NoError(t, err)
	f.embedder.AssertCalled(t, "Embed", mock.Anything, mock.MatchedBy(func(req *providers.EmbeddingRequest) bool {
		return req.Input == "Quante proteine?; Età: 25 anni"
	}))
}

func TestHandle_Idempotent(t *testing.T) {
	f := newFixture(t, time.Second, Config{})
	f.embedOK()
	f.retrieve(proteinDocs)
	f.answer("Circa 0,8 g/kg.")

	req := &Request{Question: "Quante proteine servono a un adulto?"}
	first, err := f.service.Handle(context.Background(), req)
	require.NoError(t, err)
	second, err := f.service.Handle(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Sources, second.Sources)
}

func TestHandle_FailureKinds(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		kind  services.ErrorType
	}{
		{
			name: "vector store unavailable",
			setup: func(f *fixture) {
				f.embedOK()
				f.store.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
			},
			kind: services.ErrorTypeUpstreamUnavailable,
		},
		{
			name: "embedding with wrong dimension",
			setup: func(f *fixture) {
				f.embedder.On("Embed", mock.Anything, mock.Anything).
					Return(&providers.EmbeddingResponse{Embedding: []float32{0.1, 0.2}}, nil)
			},
			kind: services.ErrorTypeDimensionMismatch,
		},
		{
			name: "model refuses",
			setup: func(f *fixture) {
				f.embedOK()
				f.retrieve(proteinDocs)
				f.chat.On("ChatCompletion", mock.Anything, mock.Anything).Return(&providers.ChatResponse{}, nil)
			},
			kind: services.ErrorTypeGenerationRefused,
		},
		{
			name: "model unavailable",
			setup: func(f *fixture) {
				f.embedOK()
				f.retrieve(proteinDocs)
				f.chat.On("ChatCompletion", mock.Anything, mock.Anything).Return(nil, errors.New("503"))
			},
			kind: services.ErrorTypeUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, time.Second, Config{})
			tt.setup(f)

			result, err := f.service.Handle(context.Background(), &Request{Question: "Quante proteine?"})

			require.Error(t, err)
			assert.Equal(t, tt.kind, services.GetErrorType(err))
			assert.Equal(t, StateFailed, result.State)
			assert.Equal(t, tt.kind, result.FailureKind)
			assert.Empty(t, result.Answer.Text)
		})
	}
}

// stubEmbedder returns a plain error to exercise the internal fallback
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("boom")
}

func TestHandle_UnknownErrorIsInternal(t *testing.T) {
	svc := NewService(stubEmbedder{}, nil, nil, nil, Config{}, zap.NewNop())

	result, err := svc.Handle(context.Background(), &Request{Question: "Quante proteine?"})

	assert.True(t, services.IsInternalError(err))
	assert.Equal(t, services.ErrorTypeInternal, result.FailureKind)
}

func TestHandle_RedactsQuestionInQueryLog(t *testing.T) {
	f := newFixture(t, time.Second, Config{})
	f.embedOK()
	f.retrieve(proteinDocs)
	f.answer("ok")

	_, err := f.service.Handle(context.Background(), &Request{Question: "Scrivimi a mario.rossi@example.com: quante proteine?"})
	require.NoError(t, err)

	entries := f.recorder.Entries()
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Question, "mario.rossi@example.com")
	assert.Contains(t, entries[0].Question, "[EMAIL_REDACTED]")
}

func TestHandle_LogsTransitions(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	f := newFixture(t, time.Second, Config{})
	f.service.logger = zap.New(core)
	f.embedOK()
	f.retrieve([]rag.Document{})

	_, err := f.service.Handle(context.Background(), &Request{Question: "Quante proteine?", RequestID: "req-log"})
	require.NoError(t, err)

	var path []string
	for _, entry := range logs.FilterMessage("state transition").All() {
		assert.Equal(t, "req-log", entry.ContextMap()["request_id"])
		path = append(path, entry.ContextMap()["to"].(string))
	}
	assert.Equal(t, []string{"embedding", "retrieving", "assembling", "no_evidence_found"}, path)
}

func TestHandle_DroppedQueryLogWarnsOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newFixture(t, time.Second, Config{})
	f.service.logger = zap.New(core)
	f.recorder.err = querylog.ErrBufferFull
	f.embedOK()
	f.retrieve(proteinDocs)
	f.answer("ok")

	_, err := f.service.Handle(context.Background(), &Request{Question: "Quante proteine?", RequestID: "req-full"})
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "query log entry not recorded", entry.Message)
	assert.Equal(t, "req-full", entry.ContextMap()["request_id"])
}

func TestState_IsTerminal(t *testing.T) {
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateNoEvidenceFound.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateGenerating.IsTerminal())
}
