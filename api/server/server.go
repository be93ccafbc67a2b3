package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"research-assistant/api/handlers"
	"research-assistant/internal/config"
	"research-assistant/llm/agents"
	"research-assistant/llm/render"
	"research-assistant/llm/services/conversations"
	"research-assistant/llm/tools"
)

//go:embed web
var webFS embed.FS

// Deps are the services the server exposes
type Deps struct {
	Sessions    *conversations.Manager
	Tools       *tools.Registry
	Specialists []agents.Descriptor
	Model       string
	Renderer    *render.Renderer
	Logger      zerolog.Logger
}

// Server represents the research assistant web server
type Server struct {
	cfg       config.ServerConfig
	handler   http.Handler
	http      *http.Server
	listeners []net.Listener
	logger    zerolog.Logger
}

// NewServer creates a new server instance
func NewServer(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Sessions == nil {
		return nil, errors.New("server requires a session manager")
	}
	if deps.Tools == nil {
		deps.Tools = tools.NewRegistry()
	}
	if deps.Renderer == nil {
		deps.Renderer = render.New()
	}

	s := &Server{cfg: cfg, logger: deps.Logger.With().Str("component", "server").Logger()}
	handler, err := s.routes(deps)
	if err != nil {
		return nil, err
	}
	s.handler = handler
	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the HTTP handler with all middleware applied
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes(deps Deps) (http.Handler, error) {
	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Renderer, deps.Model, s.logger)
	chatHandler := handlers.NewChatHandler(deps.Sessions, deps.Renderer, s.logger)
	toolHandler := handlers.NewToolHandler(deps.Tools)
	availableHandler := handlers.NewAvailableHandler(deps.Specialists, deps.Model, deps.Renderer)

	r := mux.NewRouter()
	r.Use(recoverer(s.logger), requestLogger(s.logger), cors)

	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/sessions", sessionHandler.CreateSession).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sessions/{id}", sessionHandler.GetSession).Methods(http.MethodGet)
	apiRouter.HandleFunc("/sessions/{id}/chat", chatHandler.Chat).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sessions/{id}/reset", sessionHandler.ResetSession).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sessions/{id}/memory", sessionHandler.Memory).Methods(http.MethodGet)
	apiRouter.HandleFunc("/sessions/{id}/tool-logs", sessionHandler.ToolLogs).Methods(http.MethodGet)
	apiRouter.HandleFunc("/sessions/{id}/settings", sessionHandler.UpdateSettings).Methods(http.MethodPut)
	apiRouter.HandleFunc("/tools", toolHandler.ListTools).Methods(http.MethodGet)
	apiRouter.HandleFunc("/tools/{name}", toolHandler.ExecuteTool).Methods(http.MethodPost)
	apiRouter.HandleFunc("/specialists", availableHandler.ListSpecialists).Methods(http.MethodGet)
	apiRouter.HandleFunc("/about", availableHandler.About).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status": "healthy"}`))
	}).Methods(http.MethodGet)

	static, err := fs.Sub(webFS, "web")
	if err != nil {
		return nil, fmt.Errorf("failed to load web assets: %w", err)
	}
	r.PathPrefix("/").Handler(http.FileServer(http.FS(static))).Methods(http.MethodGet)

	// Preflight requests never match a route method; answer them up front.
	return preflight(r), nil
}

// Listen binds the configured address. A localhost address gets both an
// IPv4 and, when available, an IPv6 loopback listener.
func (s *Server) Listen() error {
	host, port, err := net.SplitHostPort(s.cfg.Address)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	if host != "localhost" {
		l, err := net.Listen("tcp", s.cfg.Address)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
		}
		s.listeners = append(s.listeners, l)
		return nil
	}

	ipv4Listener, err := net.Listen("tcp4", "127.0.0.1:"+port)
	if err != nil {
		return fmt.Errorf("failed to create IPv4 listener: %w", err)
	}
	s.listeners = append(s.listeners, ipv4Listener)

	// The IPv4 listener may have picked the port when port is 0.
	_, bound, _ := net.SplitHostPort(ipv4Listener.Addr().String())
	ipv6Listener, err := net.Listen("tcp6", "[::1]:"+bound)
	if err != nil {
		s.logger.Warn().Err(err).Msg("IPv6 bind failed, continuing with IPv4 only")
	} else {
		s.listeners = append(s.listeners, ipv6Listener)
	}
	return nil
}

// Addrs returns the bound listener addresses
func (s *Server) Addrs() []string {
	out := make([]string, len(s.listeners))
	for i, l := range s.listeners {
		out[i] = l.Addr().String()
	}
	return out
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	if len(s.listeners) == 0 {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	serverErr := make(chan error, len(s.listeners))
	var wg sync.WaitGroup
	for _, l := range s.listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info().Str("address", l.Addr().String()).Msg("listening")
			if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("server on %s failed: %w", l.Addr(), err)
			}
		}()
	}

	var runErr error
	select {
	case runErr = <-serverErr:
		s.logger.Error().Err(runErr).Msg("shutting down server due to error")
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown: %w", err)
	}
	wg.Wait()
	s.logger.Info().Msg("server exited")
	return runErr
}
