package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"research-assistant/llm/providers/shared"
	"research-assistant/llm/providers/transport"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey    string
	BaseURL   string
	Transport shared.ClientOptions
}

// Provider implements the unified LLMProvider interface on the Gemini API.
type Provider struct {
	client *genai.Client
	// initErr is reported on first use when the client could not be built.
	initErr error
}

// NewProvider creates a new Gemini provider
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	opts := cfg.Transport
	opts.RetryPost = true

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Transport: transport.NewRetryTransport(nil, opts)},
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	if cfg.APIKey == "" {
		return &Provider{initErr: &shared.ProviderError{Code: shared.ErrAuth, Message: "GEMINI_API_KEY is not set"}}, nil
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider name
func (p *Provider) Name() string { return string(shared.ProviderGemini) }

// GetModelCapabilities returns capabilities for the specified model
func (p *Provider) GetModelCapabilities(model string) shared.ModelCapabilities {
	return shared.ModelCapabilities{
		Streaming:         true,
		Tools:             true,
		ParallelToolCalls: true,
		SystemMessage:     true,
		MaxContextTokens:  1000000,
	}
}

// Complete performs a completion request
func (p *Provider) Complete(ctx context.Context, req *shared.CompletionRequest) (*shared.CompletionResponse, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}
	if err := shared.ValidateCompletionRequest(req); err != nil {
		return nil, err
	}

	contents, config := ToGenAIRequest(req)
	resp, err := p.client.Models.GenerateContent(ctx, req.Options.Model, contents, config)
	if err != nil {
		return nil, NormalizeGenAIError(err)
	}
	return FromGenAIResponse(resp), nil
}

// StreamComplete performs a streaming completion request
func (p *Provider) StreamComplete(ctx context.Context, req *shared.CompletionRequest) (<-chan *shared.StreamChunk, func(), error) {
	if p.initErr != nil {
		return nil, nil, p.initErr
	}
	if err := shared.ValidateCompletionRequest(req); err != nil {
		return nil, nil, err
	}

	contents, config := ToGenAIRequest(req)
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan *shared.StreamChunk, 32)

	go func() {
		defer close(ch)

		var calls []shared.ToolCall
		var usage *shared.TokenUsage
		var streamErr error

		for resp, err := range p.client.Models.GenerateContentStream(ctx, req.Options.Model, contents, config) {
			if err != nil {
				streamErr = NormalizeGenAIError(err)
				break
			}
			out := FromGenAIResponse(resp)
			calls = append(calls, out.ToolCalls...)
			if resp.UsageMetadata != nil {
				usage = &out.Usage
			}
			if out.Content == "" {
				continue
			}
			select {
			case ch <- &shared.StreamChunk{DeltaText: out.Content}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case ch <- &shared.StreamChunk{Done: true, ToolCalls: numberCalls(calls), Usage: usage, Err: streamErr}:
		case <-ctx.Done():
		}
	}()

	return ch, cancel, nil
}

// ToGenAIRequest converts a shared CompletionRequest to GenAI contents and config
func ToGenAIRequest(req *shared.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{
		StopSequences: req.Options.Stop,
	}
	if req.Options.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Options.Temperature)
	}
	if req.Options.TopP > 0 {
		config.TopP = genai.Ptr(req.Options.TopP)
	}
	if req.Options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.Options.MaxTokens)
	}

	system := req.System
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case shared.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case shared.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case shared.RoleAssistant:
			c := &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: tc.Arguments}})
			}
			contents = append(contents, c)
		case shared.RoleTool:
			inv := m.ToolInvocation
			response := map[string]any{"output": inv.RawText}
			if inv.IsError {
				response = map[string]any{"error": inv.RawText}
			}
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{ID: inv.CallID, Name: inv.Name, Response: response}}
			// Consecutive tool results travel in one user turn.
			if n := len(contents); n > 0 && contents[n-1].Role == genai.RoleUser && isFunctionResponses(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
			} else {
				contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
			}
		}
	}

	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	if len(req.Options.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Options.Tools))
		for i, t := range req.Options.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.JSONSchema,
			}
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return contents, config
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if p.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}

// FromGenAIResponse converts a GenAI response to shared format
func FromGenAIResponse(resp *genai.GenerateContentResponse) *shared.CompletionResponse {
	out := &shared.CompletionResponse{}
	if resp == nil {
		return out
	}

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		cand := resp.Candidates[0]
		out.StopReason = string(cand.FinishReason)
		for _, part := range cand.Content.Parts {
			if part.Text != "" && !part.Thought {
				out.Content += part.Text
			}
			if part.FunctionCall != nil {
				out.ToolCalls = append(out.ToolCalls, shared.ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
			}
		}
	}
	out.ToolCalls = numberCalls(out.ToolCalls)

	if resp.UsageMetadata != nil {
		out.Usage = shared.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	msg := shared.Message{Role: shared.RoleAssistant, Content: out.Content, ToolCalls: out.ToolCalls}
	out.Messages = []shared.Message{msg}
	return out
}

// numberCalls gives ID-less calls a stable identifier so results can be paired.
func numberCalls(calls []shared.ToolCall) []shared.ToolCall {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("%s-%d", calls[i].Name, i)
		}
		if calls[i].Arguments == nil {
			calls[i].Arguments = map[string]any{}
		}
	}
	return calls
}

// NormalizeGenAIError converts GenAI errors to normalized ProviderError
func NormalizeGenAIError(err error) *shared.ProviderError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		pe := shared.ErrorFromStatus(apiErr.Code, apiErr.Message)
		pe.Raw = apiErr
		return pe
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		pe := shared.ErrorFromStatus(apiErrPtr.Code, apiErrPtr.Message)
		pe.Raw = apiErrPtr
		return pe
	}
	return shared.NormalizeError(err)
}
