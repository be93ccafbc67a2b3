package api

import (
	"time"

	"research-assistant/llm/services/conversations"
)

// TurnView is a conversation turn with its rendered HTML
type TurnView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	Error     bool      `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionInfo describes a session
type SessionInfo struct {
	ID        string                 `json:"id"`
	CreatedAt time.Time              `json:"created_at"`
	Model     string                 `json:"model"`
	Routing   string                 `json:"routing,omitempty"`
	Settings  conversations.Settings `json:"settings"`
	Turns     []TurnView             `json:"turns"`
}

// MemoryResponse is the memory dump of a session
type MemoryResponse struct {
	SessionID string `json:"session_id"`
	Dump      string `json:"dump"`
	Memories  int    `json:"memories"`
}

// ToolLogsResponse lists the tool calls of the last query
type ToolLogsResponse struct {
	SessionID string                       `json:"session_id"`
	Enabled   bool                         `json:"enabled"`
	Entries   []conversations.ToolLogEntry `json:"entries"`
	Text      string                       `json:"text"`
}

// ToolInfo describes a registered tool
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// SpecialistInfo describes a team member
type SpecialistInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Instructions []string `json:"instructions"`
	Tools        []string `json:"tools,omitempty"`
	HistoryRuns  int      `json:"history_runs"`
}

// AboutResponse carries the static texts of the shells
type AboutResponse struct {
	Title        string                  `json:"title"`
	Model        string                  `json:"model"`
	Capabilities []string                `json:"capabilities"`
	Examples     []conversations.Example `json:"examples"`
	About        string                  `json:"about"`
	AboutHTML    string                  `json:"about_html"`
	MemoryNote   string                  `json:"memory_note"`
}
