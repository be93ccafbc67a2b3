package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"research-assistant/internal/config"
	"research-assistant/llm/providers/gemini"
	"research-assistant/llm/providers/ollama"
	"research-assistant/llm/providers/openai"
	"research-assistant/llm/providers/shared"
)

// Registry manages provider instances
type Registry struct {
	providers map[string]shared.LLMProvider
	mu        sync.RWMutex
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]shared.LLMProvider),
	}
}

// RegisterProvider registers a provider instance under its name
func (r *Registry) RegisterProvider(provider shared.LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// GetProvider gets a registered provider by name
func (r *Registry) GetProvider(name string) (shared.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("provider not found: %s", name)
	}
	return provider, nil
}

// ListProviders returns the sorted names of registered providers
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TransportOptions converts the transport section of the configuration.
func TransportOptions(cfg config.TransportConfig) shared.ClientOptions {
	return shared.ClientOptions{
		Timeout:           cfg.Timeout,
		RetryMax:          cfg.RetryMax,
		RetryBackoff:      cfg.InitialBackoff,
		MaxBackoff:        cfg.MaxBackoff,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
}

// New builds the provider selected by the model configuration. A missing API
// key does not fail here; the first request reports an auth error.
func New(ctx context.Context, model config.ModelConfig, tcfg config.TransportConfig) (shared.LLMProvider, error) {
	opts := TransportOptions(tcfg)

	switch shared.ProviderType(model.Provider) {
	case shared.ProviderOpenAI:
		return openai.NewProvider(openai.Config{
			APIKey:    model.APIKey,
			BaseURL:   model.BaseURL,
			Transport: opts,
		})
	case shared.ProviderOllama:
		return ollama.NewProvider(ollama.Config{
			BaseURL:   model.BaseURL,
			Transport: opts,
		})
	case shared.ProviderGemini:
		return gemini.NewProvider(ctx, gemini.Config{
			APIKey:    model.GeminiAPIKey,
			BaseURL:   model.BaseURL,
			Transport: opts,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", model.Provider)
	}
}
