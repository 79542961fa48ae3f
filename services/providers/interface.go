package providers

import (
	"context"
	"time"
)

// ChatProvider is a remote language model that answers chat prompts.
type ChatProvider interface {
	// Name returns the provider name (e.g., "openai", "ollama")
	Name() string

	// ChatCompletion performs a single, non-streaming chat completion
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// EmbeddingProvider turns text into a dense vector.
type EmbeddingProvider interface {
	Name() string

	// Embed embeds a single input text
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
}

// ChatRequest represents a unified chat completion request
type ChatRequest struct {
	// Model identifier (e.g., "gpt-4o-mini", "llama3")
	Model string `json:"model"`

	// Messages in the conversation
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0). Nil leaves the provider default.
	Temperature *float64 `json:"temperature,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`

	// Refusal is set when the model declines to answer
	Refusal string `json:"refusal,omitempty"`
}

// Chat roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reasons reported by providers
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
)

// ChatResponse represents a unified chat completion response
type ChatResponse struct {
	ID       string        `json:"id"`
	Model    string        `json:"model"`
	Choices  []Choice      `json:"choices"`
	Usage    Usage         `json:"usage"`
	Provider string        `json:"provider"`
	Latency  time.Duration `json:"latency"`
	Created  time.Time     `json:"created"`
}

// Choice represents a completion choice
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`

	// FinishReason indicates why the completion finished
	// Values: "stop", "length", "content_filter"
	FinishReason string `json:"finish_reason"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EmbeddingRequest asks for the embedding of one text
type EmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`

	// Dimensions truncates the output vector when the model supports it
	Dimensions int `json:"dimensions,omitempty"`
}

// EmbeddingResponse carries the vector for an EmbeddingRequest
type EmbeddingResponse struct {
	Embedding []float32     `json:"embedding"`
	Model     string        `json:"model"`
	Provider  string        `json:"provider"`
	Usage     Usage         `json:"usage"`
	Latency   time.Duration `json:"latency"`
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout for the underlying HTTP client
	Timeout time.Duration

	// OrgID for organization-specific endpoints
	OrgID string
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}
