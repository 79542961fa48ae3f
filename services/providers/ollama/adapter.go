// Package ollama adapts a local Ollama server to the provider interfaces.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/longevity/longevity-backend/services/providers"
)

const (
	defaultBaseURL = "http://localhost:11434"
	providerName   = "ollama"
)

// Adapter implements providers.ChatProvider and providers.EmbeddingProvider
// against the Ollama HTTP API. Responses are requested non-streaming.
type Adapter struct {
	baseURL string
	client  *http.Client
}

// NewAdapter creates a new Ollama adapter
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	return &Adapter{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	CreatedAt       time.Time   `json:"created_at"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Embed calls /api/embeddings. The Ollama API has no dimensions parameter,
// so req.Dimensions is ignored and the model's native size is returned.
func (a *Adapter) Embed(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	start := time.Now()

	var resp embeddingResponse
	if err := a.post(ctx, "/api/embeddings", embeddingRequest{Model: req.Model, Prompt: req.Input}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embedding) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "empty embedding returned", http.StatusOK, nil)
	}

	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}

	return &providers.EmbeddingResponse{
		Embedding: vec,
		Model:     req.Model,
		Provider:  a.Name(),
		Latency:   time.Since(start),
	}, nil
}

// ChatCompletion calls /api/chat with streaming disabled.
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	start := time.Now()

	body := chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, len(req.Messages)),
		Stream:   false,
	}
	for i, m := range req.Messages {
		body.Messages[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		body.Options = &chatOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}

	var resp chatResponse
	if err := a.post(ctx, "/api/chat", body, &resp); err != nil {
		return nil, err
	}

	finish := resp.DoneReason
	if finish == "" && resp.Done {
		finish = providers.FinishReasonStop
	}

	return &providers.ChatResponse{
		Model:    resp.Model,
		Provider: a.Name(),
		Choices: []providers.Choice{{
			Index:        0,
			Message:      providers.Message{Role: resp.Message.Role, Content: resp.Message.Content},
			FinishReason: finish,
		}},
		Usage: providers.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
		Latency: time.Since(start),
		Created: resp.CreatedAt,
	}, nil
}

func (a *Adapter) post(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "marshaling request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return providers.NewProviderError(a.Name(), "REQUEST_ERROR", "creating request", 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return providers.NewProviderError(a.Name(), "HTTP_ERROR", "calling Ollama", 0, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return providers.NewProviderError(a.Name(), "READ_ERROR", "reading response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		msg := string(raw)
		var e errorResponse
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return providers.NewProviderError(a.Name(), "STATUS_ERROR", msg, httpResp.StatusCode, nil)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "decoding response", httpResp.StatusCode, err)
	}
	return nil
}
