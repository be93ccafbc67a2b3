package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"research-assistant/api"
	"research-assistant/llm/render"
	"research-assistant/llm/services/conversations"
)

// SessionHandler handles session lifecycle and debug views
type SessionHandler struct {
	sessions *conversations.Manager
	renderer *render.Renderer
	model    string
	logger   zerolog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *conversations.Manager, renderer *render.Renderer, model string, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, renderer: renderer, model: model, logger: logger}
}

// CreateSession handles POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create session")
		writeJSONError(w, http.StatusInternalServerError, "Failed to create session", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, h.info(s))
}

// GetSession handles GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.info(s))
}

// ResetSession handles POST /api/sessions/{id}/reset
func (h *SessionHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	fresh, err := h.sessions.Reset(r.Context(), s.ID())
	if errors.Is(err, conversations.ErrBusy) {
		writeJSONError(w, http.StatusConflict, "Session is still answering", err.Error())
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to reset session", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.info(fresh))
}

// Memory handles GET /api/sessions/{id}/memory
func (h *SessionHandler) Memory(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, api.MemoryResponse{
		SessionID: s.ID(),
		Dump:      s.MemoryDump(),
		Memories:  len(s.Memories()),
	})
}

// ToolLogs handles GET /api/sessions/{id}/tool-logs
func (h *SessionHandler) ToolLogs(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	entries := s.ToolLog()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Text
	}
	if entries == nil {
		entries = []conversations.ToolLogEntry{}
	}
	writeJSON(w, http.StatusOK, api.ToolLogsResponse{
		SessionID: s.ID(),
		Enabled:   s.Settings().ShowToolLogs,
		Entries:   entries,
		Text:      strings.Join(lines, "\n"),
	})
}

// UpdateSettings handles PUT /api/sessions/{id}/settings
func (h *SessionHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}
	var req api.SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	settings := s.Settings()
	if req.ShowMemory != nil {
		settings.ShowMemory = *req.ShowMemory
	}
	if req.ShowToolLogs != nil {
		settings.ShowToolLogs = *req.ShowToolLogs
	}
	s.UpdateSettings(settings)
	writeJSON(w, http.StatusOK, settings)
}

func (h *SessionHandler) info(s *conversations.Session) api.SessionInfo {
	turns := s.Turns()
	views := make([]api.TurnView, len(turns))
	for i, t := range turns {
		views[i] = api.TurnView{Role: string(t.Role), Content: t.Content, Error: t.Error, CreatedAt: t.CreatedAt}
		if t.Role == conversations.RoleAssistant {
			if html, err := h.renderer.HTML(t.Content); err == nil {
				views[i].HTML = html
			}
		}
	}
	info := api.SessionInfo{
		ID:        s.ID(),
		CreatedAt: s.CreatedAt(),
		Model:     h.model,
		Settings:  s.Settings(),
		Turns:     views,
	}
	if rt, ok := s.Runner().(interface{ Routing() string }); ok {
		info.Routing = rt.Routing()
	}
	return info
}
