package api

import "time"

// ChatRequest represents a query sent to a session
type ChatRequest struct {
	Query string `json:"query"`
}

// SettingsRequest updates the debug toggles of a session
type SettingsRequest struct {
	ShowMemory   *bool `json:"show_memory,omitempty"`
	ShowToolLogs *bool `json:"show_tool_logs,omitempty"`
}

// ExecuteToolRequest represents a request to execute a tool
type ExecuteToolRequest struct {
	Input   map[string]any `json:"input"`
	Timeout time.Duration  `json:"timeout,omitempty"`
}

// ToolResponse represents the response from tool execution
type ToolResponse struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Stats   any    `json:"stats,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Server-sent event names of the chat stream.
const (
	EventDelta = "delta"
	EventTool  = "tool"
	EventDone  = "done"
	EventError = "error"
)

// DeltaEvent carries a visible fragment of the answer
type DeltaEvent struct {
	Text string `json:"text"`
}

// DoneEvent carries the final answer
type DoneEvent struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	HTML      string `json:"html"`
}

// ErrorEvent reports a failed query
type ErrorEvent struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
