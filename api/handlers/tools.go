package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"research-assistant/api"
	"research-assistant/llm/tools"
	"research-assistant/llm/tools/shared"
)

// ToolHandler handles tool-related HTTP requests
type ToolHandler struct {
	toolRegistry *tools.Registry
}

// NewToolHandler creates a new tool handler
func NewToolHandler(toolRegistry *tools.Registry) *ToolHandler {
	return &ToolHandler{
		toolRegistry: toolRegistry,
	}
}

// ExecuteTool handles POST /api/tools/{name}
func (h *ToolHandler) ExecuteTool(w http.ResponseWriter, r *http.Request) {
	toolName := mux.Vars(r)["name"]
	if toolName == "" {
		writeJSONError(w, http.StatusBadRequest, "Invalid tool name", "Tool name is required")
		return
	}

	var req api.ExecuteToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if req.Input == nil {
		writeJSONError(w, http.StatusBadRequest, "MISSING_REQUIRED_FIELD", "input field is required")
		return
	}

	ctx := r.Context()
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	result, err := h.toolRegistry.Execute(ctx, &shared.ToolInput{Name: toolName, Data: req.Input})
	if errors.Is(err, tools.ErrToolNotFound) {
		writeJSONError(w, http.StatusNotFound, "Tool not found", err.Error())
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Tool execution failed", err.Error())
		return
	}

	response := api.ToolResponse{
		Success: result.Success,
		Output:  result.Data,
		Content: result.Content,
		Stats:   result.Stats,
	}
	if !result.Success {
		response.Error = result.Error
	}
	writeJSON(w, http.StatusOK, response)
}

// ListTools handles GET /api/tools
func (h *ToolHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	list := h.toolRegistry.List()
	infos := make([]api.ToolInfo, 0, len(list))
	for _, tool := range list {
		infos = append(infos, api.ToolInfo{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": infos})
}
