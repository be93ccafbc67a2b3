package ollama

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"research-assistant/llm/providers/openai"
	"research-assistant/llm/providers/shared"
	"research-assistant/llm/providers/transport"
)

// DefaultBaseURL is the address of a local Ollama daemon.
const DefaultBaseURL = "http://localhost:11434"

// Config holds Ollama provider configuration
type Config struct {
	BaseURL   string
	Transport shared.ClientOptions
}

// Provider talks to Ollama through its OpenAI-compatible endpoint.
type Provider struct {
	*openai.Provider
	baseURL string
	http    *transport.HTTPClient
}

// NewProvider creates a new Ollama provider
func NewProvider(cfg Config) (*Provider, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	inner, err := openai.NewProvider(openai.Config{
		APIKey:    "ollama",
		BaseURL:   baseURL + "/v1",
		Name:      string(shared.ProviderOllama),
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, err
	}

	return &Provider{
		Provider: inner,
		baseURL:  baseURL,
		http:     transport.NewHTTPClient(cfg.Transport),
	}, nil
}

// GetModelCapabilities returns capabilities for the specified model
func (p *Provider) GetModelCapabilities(model string) shared.ModelCapabilities {
	return shared.ModelCapabilities{
		Streaming:         true,
		Tools:             true,
		ParallelToolCalls: false,
		SystemMessage:     true,
		MaxContextTokens:  32000,
	}
}

// ModelFamily is the architecture family reported by Ollama.
type ModelFamily string

const (
	ModelFamilyBert   ModelFamily = "bert"
	ModelFamilyQwen3  ModelFamily = "qwen3"
	ModelFamilyLlama  ModelFamily = "llama"
	ModelFamilyGemma3 ModelFamily = "gemma3"
	ModelFamilyGPTOss ModelFamily = "gptoss"
)

// SupportedModelFamilies can drive tool calling.
var SupportedModelFamilies = []ModelFamily{
	ModelFamilyQwen3,
	ModelFamilyLlama,
	ModelFamilyGemma3,
	ModelFamilyGPTOss,
}

// Model is one entry of GET /api/tags.
type Model struct {
	Name       string       `json:"name"`
	Model      string       `json:"model"`
	ModifiedAt string       `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

type ModelDetails struct {
	ParentModel       string        `json:"parent_model"`
	Format            string        `json:"format"`
	Family            ModelFamily   `json:"family"`
	Families          []ModelFamily `json:"families"`
	ParameterSize     string        `json:"parameter_size"`
	QuantizationLevel string        `json:"quantization_level"`
}

// IsSupported reports whether the model belongs to a tool-capable family.
func (m *Model) IsSupported() bool {
	return slices.Contains(SupportedModelFamilies, m.Details.Family)
}

// ListModels returns the models pulled into the local daemon.
func (p *Provider) ListModels(ctx context.Context) ([]Model, error) {
	var models struct {
		Models []Model `json:"models"`
	}
	if err := p.http.GetJSON(ctx, p.baseURL+"/api/tags", nil, &models); err != nil {
		return nil, fmt.Errorf("failed to get models: %w", err)
	}
	return models.Models, nil
}
