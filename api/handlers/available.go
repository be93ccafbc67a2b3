package handlers

import (
	"net/http"

	"research-assistant/api"
	"research-assistant/llm/agents"
	"research-assistant/llm/render"
	"research-assistant/llm/services/conversations"
)

// AvailableHandler lists the team members and the static shell texts
type AvailableHandler struct {
	specialists []agents.Descriptor
	model       string
	renderer    *render.Renderer
}

// NewAvailableHandler creates a new available handler
func NewAvailableHandler(specialists []agents.Descriptor, model string, renderer *render.Renderer) *AvailableHandler {
	return &AvailableHandler{specialists: specialists, model: model, renderer: renderer}
}

// ListSpecialists handles GET /api/specialists
func (h *AvailableHandler) ListSpecialists(w http.ResponseWriter, r *http.Request) {
	infos := make([]api.SpecialistInfo, len(h.specialists))
	for i, d := range h.specialists {
		infos[i] = api.SpecialistInfo{
			Name:         d.Name,
			Description:  d.Description,
			Instructions: d.Instructions,
			Tools:        d.Tools,
			HistoryRuns:  d.HistoryRuns,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"specialists": infos})
}

// About handles GET /api/about
func (h *AvailableHandler) About(w http.ResponseWriter, r *http.Request) {
	aboutHTML, _ := h.renderer.HTML(conversations.About)
	writeJSON(w, http.StatusOK, api.AboutResponse{
		Title:        "Research Assistant Team",
		Model:        h.model,
		Capabilities: conversations.Capabilities,
		Examples:     conversations.Examples,
		About:        conversations.About,
		AboutHTML:    aboutHTML,
		MemoryNote:   conversations.MemoryNote,
	})
}
