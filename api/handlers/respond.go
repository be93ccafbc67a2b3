package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"research-assistant/api"
	"research-assistant/llm/services/conversations"
)

// writeJSON writes v with status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response
func writeJSONError(w http.ResponseWriter, status int, message string, details string) {
	writeJSON(w, status, api.ErrorResponse{
		Error: message,
		Code:  http.StatusText(status),
		Details: map[string]any{
			"details": details,
		},
	})
}

// session resolves the {id} route variable.
func session(w http.ResponseWriter, r *http.Request, m *conversations.Manager) (*conversations.Session, bool) {
	s, err := m.Get(mux.Vars(r)["id"])
	if errors.Is(err, conversations.ErrSessionNotFound) {
		writeJSONError(w, http.StatusNotFound, "Session not found", err.Error())
		return nil, false
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to load session", err.Error())
		return nil, false
	}
	return s, true
}
