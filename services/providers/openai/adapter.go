package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/longevity/longevity-backend/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	providerName   = "openai"
)

// OpenAIAdapter talks to the OpenAI REST API (or any compatible endpoint)
// for chat completions and embeddings.
type OpenAIAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &OpenAIAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	return providerName
}

// ChatCompletion performs a chat completion request. It makes exactly one
// HTTP attempt.
func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	var openaiResp OpenAIChatResponse
	if err := a.post(ctx, "/chat/completions", a.buildChatRequest(req), &openaiResp); err != nil {
		return nil, err
	}

	return a.convertChatResponse(&openaiResp, time.Since(startTime)), nil
}

// Embed requests the embedding of a single input
func (a *OpenAIAdapter) Embed(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	startTime := time.Now()

	body := &OpenAIEmbeddingRequest{
		Model:          req.Model,
		Input:          req.Input,
		EncodingFormat: "float",
	}
	if req.Dimensions > 0 {
		body.Dimensions = &req.Dimensions
	}

	var openaiResp OpenAIEmbeddingResponse
	if err := a.post(ctx, "/embeddings", body, &openaiResp); err != nil {
		return nil, err
	}

	if len(openaiResp.Data) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "embedding response has no data", http.StatusOK, nil)
	}

	return &providers.EmbeddingResponse{
		Embedding: openaiResp.Data[0].Embedding,
		Model:     openaiResp.Model,
		Provider:  a.Name(),
		Usage: providers.Usage{
			PromptTokens: openaiResp.Usage.PromptTokens,
			TotalTokens:  openaiResp.Usage.TotalTokens,
		},
		Latency: time.Since(startTime),
	}, nil
}

// post sends a JSON body and decodes a 200 response into out
func (a *OpenAIAdapter) post(ctx context.Context, path string, in, out interface{}) error {
	reqBody, err := json.Marshal(in)
	if err != nil {
		return providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "Failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return providers.NewProviderError(a.Name(), "REQUEST_ERROR", "Failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	if a.config.OrgID != "" {
		httpReq.Header.Set("OpenAI-Organization", a.config.OrgID)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return providers.NewProviderError(a.Name(), "READ_ERROR", "Failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "Failed to unmarshal response", httpResp.StatusCode, err)
	}
	return nil
}

// buildChatRequest converts unified request to OpenAI format
func (a *OpenAIAdapter) buildChatRequest(req *providers.ChatRequest) *OpenAIChatRequest {
	openaiReq := &OpenAIChatRequest{
		Model:    req.Model,
		Messages: make([]OpenAIMessage, len(req.Messages)),
	}

	for i, msg := range req.Messages {
		openaiReq.Messages[i] = OpenAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	if req.MaxTokens > 0 {
		openaiReq.MaxTokens = &req.MaxTokens
	}
	if req.Temperature != nil {
		t := *req.Temperature
		openaiReq.Temperature = &t
	}

	return openaiReq
}

// convertChatResponse converts OpenAI response to unified format
func (a *OpenAIAdapter) convertChatResponse(openaiResp *OpenAIChatResponse, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		ID:       openaiResp.ID,
		Model:    openaiResp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(openaiResp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     openaiResp.Usage.PromptTokens,
			CompletionTokens: openaiResp.Usage.CompletionTokens,
			TotalTokens:      openaiResp.Usage.TotalTokens,
		},
		Latency: latency,
		Created: time.Unix(openaiResp.Created, 0),
	}

	for i, choice := range openaiResp.Choices {
		msg := providers.Message{Role: choice.Message.Role}
		if choice.Message.Content != nil {
			msg.Content = *choice.Message.Content
		}
		if choice.Message.Refusal != nil {
			msg.Refusal = *choice.Message.Refusal
		}
		resp.Choices[i] = providers.Choice{
			Index:        choice.Index,
			Message:      msg,
			FinishReason: choice.FinishReason,
		}
	}

	return resp
}

// handleErrorResponse handles OpenAI error responses
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp OpenAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", string(body), statusCode, err)
	}

	return providers.NewProviderError(
		a.Name(),
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		errors.New(errResp.Error.Message),
	)
}
