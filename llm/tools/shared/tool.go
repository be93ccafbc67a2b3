package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	providershared "research-assistant/llm/providers/shared"
)

// ErrCredentialMissing marks a capability whose credential was not configured.
// It is reported on first use, never at startup.
var ErrCredentialMissing = errors.New("credential missing")

// ToolInput represents input data for tool execution
type ToolInput struct {
	Name   string         `json:"name"`
	Data   map[string]any `json:"data"`
	CallID string         `json:"call_id,omitempty"`
}

// ToolResult represents the result of tool execution
type ToolResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	// Content is the text handed back to the model.
	Content string    `json:"content,omitempty"`
	Error   string    `json:"error,omitempty"`
	Stats   ToolStats `json:"stats,omitempty"`
}

// ToolStats tracks tool execution statistics
type ToolStats struct {
	ExecutionTime time.Duration `json:"execution_time"`
	Requests      int           `json:"requests,omitempty"`
}

// Failure builds an unsuccessful result.
func Failure(format string, args ...any) *ToolResult {
	return &ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// FailureFromError builds an unsuccessful result from err.
func FailureFromError(err error) *ToolResult {
	return &ToolResult{Success: false, Error: err.Error()}
}

// Text renders the result the way the model sees it.
func (r *ToolResult) Text() string {
	if r == nil {
		return "Error: no result"
	}
	if !r.Success {
		return "Error: " + r.Error
	}
	if r.Content != "" {
		return r.Content
	}
	if len(r.Data) == 0 {
		return "ok"
	}
	b, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Sprintf("%v", r.Data)
	}
	return string(b)
}

// Definition builds the model-facing tool declaration.
func Definition(name, description string, schema map[string]any) *providershared.ToolDef {
	return &providershared.ToolDef{
		Name:        name,
		Description: description,
		JSONSchema:  schema,
	}
}

// StringArg returns a trimmed string argument.
func StringArg(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// IntArg returns an integer argument, accepting the numeric shapes JSON
// decoding and models produce. def is returned when the key is absent or
// unparseable.
func IntArg(data map[string]any, key string, def int) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// StringSliceArg returns a list argument; a single string is accepted as a
// comma separated list.
func StringSliceArg(data map[string]any, key string) []string {
	var out []string
	switch v := data[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case string:
		out = strings.Split(v, ",")
	}
	cleaned := out[:0]
	for _, s := range out {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}

// Truncate cuts s to max characters, marking the cut. max <= 0 means no limit.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n\n[...truncated...]"
}
