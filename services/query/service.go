package query

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/longevity/longevity-backend/internal/observability"
	"github.com/longevity/longevity-backend/internal/prompt"
	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/models"
	"github.com/longevity/longevity-backend/services"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns the nearest documents for a vector
type Retriever interface {
	Retrieve(ctx context.Context, vector []float32, k int) (*rag.RetrievalResult, error)
}

// Generator answers a question from a grounded context
type Generator interface {
	Generate(ctx context.Context, question string, grounded rag.GroundedContext, userData *rag.UserData) (rag.Answer, error)
}

// Recorder accepts query log entries without blocking
type Recorder interface {
	Record(entry *models.QueryLog) error
}

// Config holds pipeline options
type Config struct {
	// EmbedUserData appends the user data summary to the embedded text
	EmbedUserData bool

	// VectorStore names the retrieval backend in query logs
	VectorStore string
}

// Service orchestrates embed, retrieve, assemble and generate for a question
type Service struct {
	embedder  Embedder
	retriever Retriever
	generator Generator
	recorder  Recorder
	cfg       Config
	logger    *zap.Logger
}

// NewService creates a new query service. recorder may be nil.
func NewService(
	embedder Embedder,
	retriever Retriever,
	generator Generator,
	recorder Recorder,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger,
	}
}

// pipeline tracks one request through the state machine
type pipeline struct {
	requestID string
	state     State
	start     time.Time
	logger    *zap.Logger
}

func (p *pipeline) transition(to State) {
	p.logger.Debug("state transition",
		zap.String("request_id", p.requestID),
		zap.String("from", string(p.state)),
		zap.String("to", string(to)))
	p.state = to
}

// Handle answers one question. A question without usable evidence yields a
// Result in StateNoEvidenceFound and a nil error. Any failure yields a Result
// in StateFailed together with the typed domain error.
func (s *Service) Handle(ctx context.Context, req *Request) (result *Result, err error) {
	if req == nil {
		req = &Request{}
	}

	p := &pipeline{
		requestID: req.RequestID,
		state:     StateReceived,
		start:     time.Now(),
		logger:    s.logger,
	}
	if p.requestID == "" {
		p.requestID = uuid.New().String()
	}
	result = &Result{RequestID: p.requestID, State: StateReceived}

	ctx, span := observability.StartSpan(ctx, "rag.query",
		attribute.String("request_id", p.requestID))
	defer func() {
		span.SetAttributes(attribute.String("rag.state", string(result.State)))
		observability.EndSpan(span, err)
	}()

	s.logger.Info("starting query pipeline",
		zap.String("request_id", p.requestID),
		zap.Bool("has_user_data", !req.UserData.IsEmpty()))

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return s.fail(p, req, result, services.ErrEmptyQuestion)
	}

	// Step 1: Embed the question
	s.logger.Debug("step 1: embedding question", zap.String("request_id", p.requestID))
	p.transition(StateEmbedding)
	vector, err := s.embedder.Embed(ctx, s.embeddingText(question, req.UserData))
	if err != nil {
		return s.fail(p, req, result, err)
	}

	// Step 2: Retrieve nearest passages
	s.logger.Debug("step 2: retrieving passages", zap.String("request_id", p.requestID))
	p.transition(StateRetrieving)
	retrieved, err := s.retriever.Retrieve(ctx, vector, rag.TopK)
	if err != nil {
		return s.fail(p, req, result, err)
	}

	// Step 3: Assemble the grounded context
	s.logger.Debug("step 3: assembling context",
		zap.String("request_id", p.requestID),
		zap.Int("matches", retrieved.Len()))
	p.transition(StateAssembling)
	grounded, ok := rag.Assemble(retrieved)
	if !ok {
		p.transition(StateNoEvidenceFound)
		result.State = StateNoEvidenceFound
		s.logger.Info("no usable evidence for question",
			zap.String("request_id", p.requestID),
			zap.Int("matches", retrieved.Len()))
		s.record(req, p, models.NewQueryLog(p.requestID, "", string(StateNoEvidenceFound)).
			WithSources(retrieved.IDs()))
		return result, nil
	}
	result.Sources = grounded.Passages

	// Step 4: Generate the answer
	s.logger.Debug("step 4: generating answer",
		zap.String("request_id", p.requestID),
		zap.Int("passages", len(grounded.Passages)))
	p.transition(StateGenerating)
	answer, err := s.generator.Generate(ctx, question, grounded, req.UserData)
	if err != nil {
		return s.fail(p, req, result, err)
	}

	p.transition(StateCompleted)
	result.State = StateCompleted
	result.Answer = answer

	s.record(req, p, models.NewQueryLog(p.requestID, "", string(StateCompleted)).
		WithSources(passageIDs(grounded.Passages)).
		WithGeneration(answer.Model, answer.Provider, answer.PromptTokens, answer.OutputTokens))

	s.logger.Info("query pipeline completed",
		zap.String("request_id", p.requestID),
		zap.Int("passages", len(grounded.Passages)),
		zap.Int("latency_ms", int(time.Since(p.start).Milliseconds())))

	return result, nil
}

// embeddingText is the trimmed question, optionally followed by the user
// data summary.
func (s *Service) embeddingText(question string, userData *rag.UserData) string {
	if !s.cfg.EmbedUserData || userData.IsEmpty() {
		return question
	}
	return question + "; " + userData.Summary()
}

// fail moves the pipeline to StateFailed. Errors that are not domain errors
// are reported as internal.
func (s *Service) fail(p *pipeline, req *Request, result *Result, err error) (*Result, error) {
	kind := services.GetErrorType(err)
	if kind == "" {
		err = services.WrapInternal("query pipeline failed", err)
		kind = services.ErrorTypeInternal
	}

	failedAt := p.state
	p.transition(StateFailed)
	result.State = StateFailed
	result.FailureKind = kind
	result.Answer = rag.Answer{}

	fields := []zap.Field{
		zap.String("request_id", p.requestID),
		zap.String("failed_at", string(failedAt)),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	if kind == services.ErrorTypeValidation {
		s.logger.Info("query rejected", fields...)
	} else {
		s.logger.Error("query pipeline failed", fields...)
	}

	s.record(req, p, models.NewQueryLog(p.requestID, "", string(StateFailed)).
		WithFailure(string(kind)))

	return result, err
}

// record hands the entry to the recorder, filling in the redacted question
// and the latency. It never blocks the request.
func (s *Service) record(req *Request, p *pipeline, entry *models.QueryLog) {
	if s.recorder == nil {
		return
	}

	entry.Question = prompt.RedactPII(strings.TrimSpace(req.Question))
	entry.VectorStore = s.cfg.VectorStore
	entry.WithLatency(time.Since(p.start))

	if err := s.recorder.Record(entry); err != nil {
		s.logger.Warn("query log entry not recorded",
			zap.String("request_id", p.requestID),
			zap.Error(err))
	}
}

func passageIDs(passages []rag.Passage) []string {
	ids := make([]string, 0, len(passages))
	for _, p := range passages {
		ids = append(ids, p.DocumentID)
	}
	return ids
}
