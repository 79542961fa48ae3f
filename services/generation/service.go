package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/longevity/longevity-backend/internal/observability"
	"github.com/longevity/longevity-backend/internal/prompt"
	"github.com/longevity/longevity-backend/internal/rag"
	"github.com/longevity/longevity-backend/services"
	"github.com/longevity/longevity-backend/services/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultTimeout = 60 * time.Second

// Config holds the chat model settings
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Service produces grounded answers through a ChatProvider
type Service struct {
	provider providers.ChatProvider
	guard    *prompt.Guard
	cfg      Config
	logger   *zap.Logger
}

// NewService creates a new generation service. guard may be nil.
func NewService(provider providers.ChatProvider, guard *prompt.Guard, cfg Config, logger *zap.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Service{
		provider: provider,
		guard:    guard,
		cfg:      cfg,
		logger:   logger,
	}
}

// BuildMessages returns the system and user messages sent for a question.
func (s *Service) BuildMessages(ctx context.Context, question string, grounded rag.GroundedContext, userData *rag.UserData) []providers.Message {
	return []providers.Message{
		{Role: providers.RoleSystem, Content: SystemPrompt},
		{Role: providers.RoleUser, Content: buildUserPrompt(ctx, s.guard, question, grounded, userData)},
	}
}

// Generate asks the chat model to answer question from grounded only.
func (s *Service) Generate(ctx context.Context, question string, grounded rag.GroundedContext, userData *rag.UserData) (answer rag.Answer, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.generate",
		attribute.String("llm.provider", s.provider.Name()),
		attribute.String("llm.model", s.cfg.Model),
		attribute.Int("rag.passages", len(grounded.Passages)))
	defer func() { observability.EndSpan(span, err) }()

	temperature := s.cfg.Temperature
	req := &providers.ChatRequest{
		Model:       s.cfg.Model,
		Messages:    s.BuildMessages(ctx, question, grounded, userData),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: &temperature,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.provider.ChatCompletion(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return rag.Answer{}, services.WrapUpstream(
				fmt.Sprintf("generation timed out after %s", s.cfg.Timeout), err)
		}
		return rag.Answer{}, services.WrapUpstream("chat completion failed", err)
	}

	text, err := extractAnswer(resp)
	if err != nil {
		s.logger.Warn("generation refused",
			zap.String("provider", s.provider.Name()),
			zap.Error(err))
		return rag.Answer{}, err
	}

	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.completion_tokens", resp.Usage.CompletionTokens))
	s.logger.Debug("answer generated",
		zap.String("provider", s.provider.Name()),
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("latency", time.Since(start)))

	model := resp.Model
	if model == "" {
		model = s.cfg.Model
	}
	return rag.Answer{
		Text:         text,
		Model:        model,
		Provider:     s.provider.Name(),
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// extractAnswer returns the first choice verbatim, or a refusal error when
// the model declined, was filtered or said nothing.
func extractAnswer(resp *providers.ChatResponse) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", services.WrapRefused("model returned no choices", nil)
	}

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", services.WrapRefused("model refused to answer", nil).
			WithDetail("refusal", choice.Message.Refusal)
	}
	if choice.FinishReason == providers.FinishReasonContentFilter {
		return "", services.WrapRefused("answer blocked by content filter", nil)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", services.WrapRefused("model returned an empty answer", nil)
	}
	return choice.Message.Content, nil
}
