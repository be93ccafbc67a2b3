package team

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"research-assistant/llm/memory"
	providershared "research-assistant/llm/providers/shared"
	toolshared "research-assistant/llm/tools/shared"
)

// Tool names offered to the coordinator.
const (
	DelegateToolName     = "delegate_task_to_member"
	MemoryToolName       = "update_user_memory"
	MemorySearchToolName = "search_memory"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

// delegateTool hands a task to one member of the team.
type delegateTool struct {
	run *teamRun
}

func (d *delegateTool) Name() string { return DelegateToolName }

func (d *delegateTool) Description() string {
	return "Use this function to delegate a task to the selected team member. " +
		"You must provide a clear and concise description of the task the member should achieve AND the expected output."
}

func (d *delegateTool) Schema() map[string]any {
	ids := make([]any, 0, len(d.run.team.order))
	for _, m := range d.run.team.order {
		ids = append(ids, m.Name)
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"member_id": map[string]any{
				"type":        "string",
				"description": "The ID of the member to delegate the task to.",
				"enum":        ids,
			},
			"task_description": map[string]any{
				"type":        "string",
				"description": "A clear and concise description of the task the member should achieve.",
			},
			"expected_output": map[string]any{
				"type":        "string",
				"description": "The expected output from the member (optional).",
			},
		},
		"required": []string{"member_id", "task_description"},
	}
}

func (d *delegateTool) Definition() *providershared.ToolDef {
	return toolshared.Definition(d.Name(), d.Description(), d.Schema())
}

func (d *delegateTool) Execute(ctx context.Context, input *toolshared.ToolInput) (*toolshared.ToolResult, error) {
	task, ok := toolshared.StringArg(input.Data, "task_description")
	if !ok {
		return toolshared.Failure("task_description is required"), nil
	}
	memberID, _ := toolshared.StringArg(input.Data, "member_id")
	expected, _ := toolshared.StringArg(input.Data, "expected_output")

	res := d.run.delegate(ctx, memberID, task, expected)
	return &toolshared.ToolResult{
		Success: true,
		Content: res.Text(),
		Data:    map[string]any{"member": res.Member, "failed": res.Failed()},
	}, nil
}

// memoryTool lets the coordinator curate the session's memory records.
type memoryTool struct {
	store     memory.Store
	sessionID string
}

func (m *memoryTool) Name() string { return MemoryToolName }

func (m *memoryTool) Description() string {
	return "Use this function to add, update or delete a memory about the user. " +
		"Store lasting facts, preferences and context worth remembering for future questions."
}

func (m *memoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []any{"add", "update", "delete"},
			},
			"memory": map[string]any{
				"type":        "string",
				"description": "The memory text. Required for add and update.",
			},
			"memory_id": map[string]any{
				"type":        "string",
				"description": "The id of the memory to update or delete.",
			},
			"topics": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []string{"action"},
	}
}

func (m *memoryTool) Definition() *providershared.ToolDef {
	return toolshared.Definition(m.Name(), m.Description(), m.Schema())
}

func (m *memoryTool) Execute(ctx context.Context, input *toolshared.ToolInput) (*toolshared.ToolResult, error) {
	action, _ := toolshared.StringArg(input.Data, "action")
	content, _ := toolshared.StringArg(input.Data, "memory")
	id, _ := toolshared.StringArg(input.Data, "memory_id")

	switch strings.ToLower(action) {
	case "add", "":
		if content == "" {
			return toolshared.Failure("memory is required to add a memory"), nil
		}
		rec, err := m.store.AddMemory(ctx, m.sessionID, content, toolshared.StringSliceArg(input.Data, "topics"))
		if err != nil {
			return nil, fmt.Errorf("add memory: %w", err)
		}
		return &toolshared.ToolResult{Success: true, Content: "Memory added: " + rec.ID, Data: map[string]any{"memory_id": rec.ID}}, nil
	case "update":
		if id == "" || content == "" {
			return toolshared.Failure("memory_id and memory are required to update a memory"), nil
		}
		if err := m.store.UpdateMemory(ctx, m.sessionID, id, content); err != nil {
			return m.missing(id, err)
		}
		return &toolshared.ToolResult{Success: true, Content: "Memory updated: " + id}, nil
	case "delete":
		if id == "" {
			return toolshared.Failure("memory_id is required to delete a memory"), nil
		}
		if err := m.store.DeleteMemory(ctx, m.sessionID, id); err != nil {
			return m.missing(id, err)
		}
		return &toolshared.ToolResult{Success: true, Content: "Memory deleted: " + id}, nil
	default:
		return toolshared.Failure("unknown action %q, expected add, update or delete", action), nil
	}
}

func (m *memoryTool) missing(id string, err error) (*toolshared.ToolResult, error) {
	if errors.Is(err, memory.ErrNotFound) {
		return toolshared.Failure("no memory with id %s", id), nil
	}
	return nil, err
}

// searchMemoryTool recalls the session's memory records relevant to a query.
// The store decides the ranking: keywords in memory and sqlite, vectors in
// milvus.
type searchMemoryTool struct {
	store     memory.Store
	sessionID string
}

func (m *searchMemoryTool) Name() string { return MemorySearchToolName }

func (m *searchMemoryTool) Description() string {
	return "Use this function to search the memories about the user for facts relevant to a query. " +
		"Returns the best matching memories with their ids."
}

func (m *searchMemoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to look for in the memories.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum number of memories to return (default %d).", defaultSearchLimit),
			},
		},
		"required": []string{"query"},
	}
}

func (m *searchMemoryTool) Definition() *providershared.ToolDef {
	return toolshared.Definition(m.Name(), m.Description(), m.Schema())
}

func (m *searchMemoryTool) Execute(ctx context.Context, input *toolshared.ToolInput) (*toolshared.ToolResult, error) {
	query, ok := toolshared.StringArg(input.Data, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return toolshared.Failure("query is required"), nil
	}
	limit := toolshared.IntArg(input.Data, "limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	records, err := m.store.SearchMemories(ctx, m.sessionID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	if len(records) == 0 {
		return &toolshared.ToolResult{Success: true, Content: fmt.Sprintf("No memories matched %q.", query)}, nil
	}

	var b strings.Builder
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
		fmt.Fprintf(&b, "- [%s] %s", r.ID, r.Content)
		if len(r.Topics) > 0 {
			fmt.Fprintf(&b, " (topics: %s)", strings.Join(r.Topics, ", "))
		}
		b.WriteString("\n")
	}
	return &toolshared.ToolResult{
		Success: true,
		Content: strings.TrimRight(b.String(), "\n"),
		Data:    map[string]any{"memory_ids": ids},
	}, nil
}
