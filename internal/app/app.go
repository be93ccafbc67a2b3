// Package app wires the configuration into the running team: the model
// provider, the memory store, the tool registry and the session manager.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"research-assistant/internal/config"
	"research-assistant/llm/agents"
	"research-assistant/llm/agents/specialists"
	"research-assistant/llm/agents/team"
	"research-assistant/llm/memory"
	"research-assistant/llm/memory/milvus"
	"research-assistant/llm/memory/sqlite"
	"research-assistant/llm/providers"
	"research-assistant/llm/providers/openai"
	"research-assistant/llm/providers/shared"
	"research-assistant/llm/providers/transport"
	"research-assistant/llm/services/conversations"
	"research-assistant/llm/tools"
	"research-assistant/llm/tools/crawler"
	"research-assistant/llm/tools/duckduckgo"
	"research-assistant/llm/tools/github"
	"research-assistant/llm/tools/hackernews"
	"research-assistant/llm/tools/resend"
	"research-assistant/llm/tools/youtube"
)

// App holds the long-lived services of one process.
type App struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Provider    shared.LLMProvider
	Store       memory.Store
	Tools       *tools.Registry
	Specialists []agents.Descriptor
	Sessions    *conversations.Manager

	closers []io.Closer
}

// New builds the services selected by cfg.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:      cfg,
		Logger:      logger,
		Specialists: specialists.Descriptors(specialists.FromConfig(cfg)),
	}

	provider, err := providers.New(ctx, cfg.Model, cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create model provider: %w", err)
	}
	a.Provider = provider

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store)

	registry, closer := NewToolRegistry(cfg)
	a.Tools = registry
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		logger.Warn().Strs("missing", missing).Msg("some capabilities will fail until their credentials are set")
	}

	a.Sessions = conversations.NewManager(func() (conversations.Runner, error) {
		return a.NewTeam()
	}, conversations.Options{
		// Durable backends keep old sessions; only the in-memory store is
		// cleared on reset.
		ClearOnReset: cfg.Memory.Backend == "memory",
		Logger:       &logger,
	})
	return a, nil
}

// NewTeam builds a coordinator team over the shared services.
func (a *App) NewTeam() (*team.Team, error) {
	cfg := a.Config
	return team.New(team.Config{
		Provider: a.Provider,
		Store:    a.Store,
		Tools:    a.Tools,
		Members:  a.Specialists,
		Options: team.Options{
			Routing:               cfg.Team.Routing,
			ShowMemberResponses:   cfg.Team.ShowMemberResponses,
			HistoryRuns:           cfg.Team.HistoryRuns,
			DelegationConcurrency: cfg.Team.DelegationConcurrency,
		},
		Agent: agents.Options{
			Model:         cfg.Model.Name,
			Temperature:   cfg.Model.Temperature,
			MaxTokens:     cfg.Model.MaxTokens,
			MaxToolRounds: cfg.Team.MaxToolRounds,
		},
		Logger: &a.Logger,
	})
}

// Close releases the store and the browser, if one was started.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStore opens the memory backend named by cfg.Memory.Backend.
func OpenStore(ctx context.Context, cfg *config.Config) (memory.Store, error) {
	switch cfg.Memory.Backend {
	case "", "memory":
		return memory.NewInMemory(), nil
	case "sqlite":
		s, err := sqlite.Open(cfg.Memory.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite memory: %w", err)
		}
		return s, nil
	case "milvus":
		embedder, err := openai.NewProvider(openai.Config{
			APIKey:    cfg.Model.APIKey,
			BaseURL:   cfg.Model.BaseURL,
			Transport: providers.TransportOptions(cfg.Transport),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		var base memory.Store
		if cfg.Memory.SQLitePath != "" {
			if base, err = sqlite.Open(cfg.Memory.SQLitePath); err != nil {
				return nil, fmt.Errorf("failed to open sqlite run history: %w", err)
			}
		}
		s, err := milvus.New(ctx, milvus.Config{
			Address:        cfg.Memory.Milvus.Address,
			Collection:     cfg.Memory.Milvus.Collection,
			Recreate:       cfg.Memory.Milvus.Recreate,
			EmbeddingModel: cfg.Memory.EmbeddingModel,
			Dimension:      cfg.Memory.EmbeddingDimension,
		}, embedder, base)
		if err != nil {
			if base != nil {
				_ = base.Close()
			}
			return nil, fmt.Errorf("failed to open milvus memory: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown memory backend: %s", cfg.Memory.Backend)
	}
}

// NewToolRegistry registers every specialist tool. The returned closer stops
// the headless browser of the crawler and is nil in http mode.
func NewToolRegistry(cfg *config.Config) (*tools.Registry, io.Closer) {
	opts := providers.TransportOptions(cfg.Transport)
	// Sending mail is not idempotent, so POST requests are never retried.
	opts.RetryPost = false
	client := transport.NewHTTPClient(opts)

	registry := tools.NewRegistry()
	registry.Register(
		duckduckgo.NewSearch(client, ""),
		duckduckgo.NewNews(client, ""),
	)

	var closer io.Closer
	var fetcher crawler.Fetcher = crawler.NewHTTPFetcher(client)
	if cfg.Crawler.Mode == "browser" {
		bf := crawler.NewBrowserFetcher(cfg.Crawler.BrowserControlURL, cfg.Crawler.Timeout)
		fetcher, closer = bf, bf
	}
	registry.Register(crawler.New(fetcher, cfg.Crawler.MaxLength))

	yt := youtube.NewClient(client, "")
	registry.Register(youtube.NewDataTool(yt), youtube.NewCaptionsTool(yt), youtube.NewTimestampsTool(yt))

	registry.Register(resend.NewSendEmail(client, resend.Config{
		APIKey:    cfg.Email.ResendAPIKey,
		From:      cfg.Email.From,
		DefaultTo: cfg.Email.To,
		BaseURL:   cfg.Email.BaseURL,
	}))

	for _, t := range github.Tools(github.NewClient(client, cfg.GitHub.BaseURL, cfg.GitHub.AccessToken)) {
		registry.Register(t)
	}

	hn := hackernews.NewClient(client, "")
	registry.Register(hackernews.NewTopStoriesTool(hn), hackernews.NewUserTool(hn))
	return registry, closer
}
