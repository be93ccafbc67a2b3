package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	providershared "research-assistant/llm/providers/shared"
	toolshared "research-assistant/llm/tools/shared"
)

// ErrToolNotFound is returned when a tool name is not registered.
var ErrToolNotFound = errors.New("tool not found")

// Tool defines the interface that all tools must implement
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Definition() *providershared.ToolDef
	Execute(ctx context.Context, input *toolshared.ToolInput) (*toolshared.ToolResult, error)
}

// Registry manages tool registration and execution
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds tools to the registry
func (r *Registry) Register(tools ...Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tool := range tools {
		r.tools[tool.Name()] = tool
	}
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// List returns all registered tools sorted by name
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Execute runs a tool by name with the given input
func (r *Registry) Execute(ctx context.Context, input *toolshared.ToolInput) (*toolshared.ToolResult, error) {
	tool, err := r.Get(input.Name)
	if err != nil {
		return nil, err
	}
	return run(ctx, tool, input)
}

// Toolkit selects the named tools into a toolkit. Unknown names fail.
func (r *Registry) Toolkit(names ...string) (*Toolkit, error) {
	kit := &Toolkit{byName: make(map[string]Tool, len(names))}
	for _, name := range names {
		tool, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		kit.Add(tool)
	}
	return kit, nil
}

// ToolsWithPrefix returns the names of registered tools starting with prefix.
func (r *Registry) ToolsWithPrefix(prefix string) []string {
	var names []string
	for _, t := range r.List() {
		if strings.HasPrefix(t.Name(), prefix) {
			names = append(names, t.Name())
		}
	}
	return names
}

func run(ctx context.Context, tool Tool, input *toolshared.ToolInput) (*toolshared.ToolResult, error) {
	start := time.Now()
	result, err := tool.Execute(ctx, input)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = toolshared.Failure("%s returned no result", tool.Name())
	}
	result.Stats.ExecutionTime = time.Since(start)
	return result, nil
}

// Toolkit is the ordered set of tools bound to one agent.
type Toolkit struct {
	tools  []Tool
	byName map[string]Tool
}

// NewToolkit builds a toolkit from tools.
func NewToolkit(tools ...Tool) *Toolkit {
	kit := &Toolkit{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		kit.Add(t)
	}
	return kit
}

// Add appends a tool, replacing one with the same name.
func (k *Toolkit) Add(tool Tool) {
	if _, exists := k.byName[tool.Name()]; !exists {
		k.tools = append(k.tools, tool)
	} else {
		for i, t := range k.tools {
			if t.Name() == tool.Name() {
				k.tools[i] = tool
			}
		}
	}
	k.byName[tool.Name()] = tool
}

// Len returns the number of tools.
func (k *Toolkit) Len() int {
	if k == nil {
		return 0
	}
	return len(k.tools)
}

// Names returns the tool names in insertion order, or nil for an empty kit.
func (k *Toolkit) Names() []string {
	if k == nil || len(k.tools) == 0 {
		return nil
	}
	names := make([]string, len(k.tools))
	for i, t := range k.tools {
		names[i] = t.Name()
	}
	return names
}

// Definitions returns the declarations offered to the model.
func (k *Toolkit) Definitions() []providershared.ToolDef {
	if k == nil {
		return nil
	}
	defs := make([]providershared.ToolDef, 0, len(k.tools))
	for _, t := range k.tools {
		defs = append(defs, *t.Definition())
	}
	return defs
}

// Call executes a model tool call. Unknown tools and argument decoding
// failures become unsuccessful results so the model can react to them.
func (k *Toolkit) Call(ctx context.Context, call providershared.ToolCall) *toolshared.ToolResult {
	if call.Arguments == nil && call.RawArguments != "" {
		return toolshared.Failure("could not decode arguments for %s: %s", call.Name, call.RawArguments)
	}
	var tool Tool
	if k != nil {
		tool = k.byName[call.Name]
	}
	if tool == nil {
		return toolshared.Failure("%v: %s", ErrToolNotFound, call.Name)
	}
	result, err := run(ctx, tool, &toolshared.ToolInput{Name: call.Name, Data: call.Arguments, CallID: call.ID})
	if err != nil {
		return toolshared.FailureFromError(err)
	}
	return result
}

// With returns a new toolkit holding the tools of k followed by those of
// other. Tools of other replace same-named tools of k.
func (k *Toolkit) With(other *Toolkit) *Toolkit {
	out := NewToolkit()
	if k != nil {
		for _, t := range k.tools {
			out.Add(t)
		}
	}
	if other != nil {
		for _, t := range other.tools {
			out.Add(t)
		}
	}
	return out
}
