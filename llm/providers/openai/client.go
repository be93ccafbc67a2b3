package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"research-assistant/llm/providers/shared"
	"research-assistant/llm/providers/transport"

	"github.com/sashabaranov/go-openai"
)

// Config holds OpenAI provider configuration
type Config struct {
	APIKey  string
	BaseURL string
	OrgID   string
	// Name overrides the provider name (used by OpenAI-compatible backends).
	Name string
	// Transport carries retry and pacing options for every API call.
	Transport shared.ClientOptions
}

// Provider implements the unified LLMProvider interface for OpenAI
type Provider struct {
	client *openai.Client
	config Config
}

// NewProvider creates a new OpenAI provider
func NewProvider(cfg Config) (*Provider, error) {
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		openaiConfig.OrgID = cfg.OrgID
	}

	// Completion bodies are replayable, so POSTs are safe to retry here.
	opts := cfg.Transport
	opts.RetryPost = true
	openaiConfig.HTTPClient = &http.Client{
		Transport: transport.NewRetryTransport(nil, opts),
	}

	return &Provider{
		client: openai.NewClientWithConfig(openaiConfig),
		config: cfg,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	if p.config.Name != "" {
		return p.config.Name
	}
	return string(shared.ProviderOpenAI)
}

// GetModelCapabilities returns capabilities for the specified model
func (p *Provider) GetModelCapabilities(model string) shared.ModelCapabilities {
	return shared.ModelCapabilities{
		Streaming:         true,
		Tools:             true,
		ParallelToolCalls: true,
		SystemMessage:     true,
		MaxContextTokens:  128000,
	}
}

// Complete performs a completion request
func (p *Provider) Complete(ctx context.Context, req *shared.CompletionRequest) (*shared.CompletionResponse, error) {
	if err := shared.ValidateCompletionRequest(req); err != nil {
		return nil, err
	}

	openaiReq, err := ToOpenAIRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to convert request: %w", err)
	}

	resp, err := p.client.CreateChatCompletion(ctx, *openaiReq)
	if err != nil {
		return nil, NormalizeOpenAIError(err)
	}

	return FromOpenAIResponse(resp), nil
}

// StreamComplete performs a streaming completion request
func (p *Provider) StreamComplete(ctx context.Context, req *shared.CompletionRequest) (<-chan *shared.StreamChunk, func(), error) {
	if err := shared.ValidateCompletionRequest(req); err != nil {
		return nil, nil, err
	}

	openaiReq, err := ToOpenAIStreamRequest(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to convert stream request: %w", err)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, *openaiReq)
	if err != nil {
		return nil, nil, NormalizeOpenAIError(err)
	}

	ch := make(chan *shared.StreamChunk, 32)
	cancel := func() { _ = stream.Close() }

	go func() {
		defer close(ch)
		defer cancel()

		acc := newToolCallAccumulator()
		send := func(c *shared.StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			resp, err := stream.Recv()
			if err != nil {
				final := &shared.StreamChunk{Done: true, ToolCalls: acc.Calls()}
				if !errors.Is(err, io.EOF) {
					final.Err = NormalizeOpenAIError(err)
				}
				send(final)
				return
			}

			chunk := FromOpenAIStream(resp, acc)
			if chunk.DeltaText == "" && chunk.Usage == nil {
				continue
			}
			if !send(chunk) {
				return
			}
		}
	}()

	return ch, cancel, nil
}

// Embed returns one embedding per input text.
func (p *Provider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, NormalizeOpenAIError(err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

// NormalizeOpenAIError converts OpenAI errors to normalized ProviderError
func NormalizeOpenAIError(err error) *shared.ProviderError {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := shared.ErrorFromStatus(apiErr.HTTPStatusCode, apiErr.Message)
		if code, ok := apiErr.Code.(string); ok {
			switch code {
			case "context_length_exceeded":
				pe.Code = shared.ErrContextLength
			case "model_not_found":
				pe.Code = shared.ErrModelNotFound
			case "invalid_api_key":
				pe.Code = shared.ErrAuth
			}
		}
		pe.Raw = apiErr
		return pe
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		pe := shared.ErrorFromStatus(reqErr.HTTPStatusCode, reqErr.Error())
		pe.Raw = reqErr
		return pe
	}

	return shared.NormalizeError(err)
}
