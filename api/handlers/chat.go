package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"research-assistant/api"
	"research-assistant/llm/render"
	"research-assistant/llm/services/conversations"
)

// ChatHandler streams answers of the team as server-sent events
type ChatHandler struct {
	sessions *conversations.Manager
	renderer *render.Renderer
	logger   zerolog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(sessions *conversations.Manager, renderer *render.Renderer, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{sessions: sessions, renderer: renderer, logger: logger}
}

// Chat handles POST /api/sessions/{id}/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	s, ok := session(w, r, h.sessions)
	if !ok {
		return
	}

	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "MISSING_REQUIRED_FIELD", "query field is required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events := newEventWriter(w)
	sink := conversations.SinkFuncs{
		Delta: func(text string) { events.send(api.EventDelta, api.DeltaEvent{Text: text}) },
		Tool:  func(e conversations.ToolLogEntry) { events.send(api.EventTool, e) },
	}

	ans, err := s.Ask(r.Context(), req.Query, sink)
	switch {
	case errors.Is(err, conversations.ErrBusy):
		events.send(api.EventError, api.ErrorEvent{Message: "The team is still working on your previous question.", Detail: err.Error()})
	case err != nil:
		h.logger.Error().Err(err).Str("session_id", s.ID()).Msg("chat failed")
		msg := "An error occurred. Please check your API keys and try again."
		if ans == nil {
			msg = "Invalid query."
		}
		events.send(api.EventError, api.ErrorEvent{Message: msg, Detail: err.Error()})
	default:
		html, rerr := h.renderer.HTML(ans.Content)
		if rerr != nil {
			html = ""
		}
		events.send(api.EventDone, api.DoneEvent{SessionID: s.ID(), Content: ans.Content, HTML: html})
	}
}

// eventWriter writes server-sent events and flushes after each one.
type eventWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	return &eventWriter{w: w, rc: http.NewResponseController(w)}
}

func (e *eventWriter) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return
	}
	_ = e.rc.Flush()
}
