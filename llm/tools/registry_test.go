package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	providershared "research-assistant/llm/providers/shared"
	toolshared "research-assistant/llm/tools/shared"
)

type echoTool struct {
	name  string
	reply string
	err   error
}

func (e echoTool) Name() string           { return e.name }
func (e echoTool) Description() string    { return "echoes " + e.name }
func (e echoTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (e echoTool) Definition() *providershared.ToolDef {
	return toolshared.Definition(e.name, e.Description(), e.Schema())
}
func (e echoTool) Execute(_ context.Context, in *toolshared.ToolInput) (*toolshared.ToolResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &toolshared.ToolResult{Success: true, Content: e.reply, Data: in.Data}, nil
}

func TestRegistryListAndPrefix(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "github_search_repositories"}, echoTool{name: "duckduckgo_search"}, echoTool{name: "github_get_repository"})

	var names []string
	for _, tool := range r.List() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"duckduckgo_search", "github_get_repository", "github_search_repositories"}, names)
	assert.Equal(t, []string{"github_get_repository", "github_search_repositories"}, r.ToolsWithPrefix("github_"))

	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistryExecuteRecordsStats(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "echo", reply: "hi"})

	res, err := r.Execute(context.Background(), &toolshared.ToolInput{Name: "echo", Data: map[string]any{"a": 1}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hi", res.Content)
	assert.GreaterOrEqual(t, int64(res.Stats.ExecutionTime), int64(0))

	_, err = r.Execute(context.Background(), &toolshared.ToolInput{Name: "missing"})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestToolkitSelectsByName(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "a"}, echoTool{name: "b"}, echoTool{name: "c"})

	kit, err := r.Toolkit("c", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, kit.Names())
	defs := kit.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "c", defs[0].Name)

	_, err = r.Toolkit("a", "zzz")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestEmptyToolkitHasNoNames(t *testing.T) {
	r := NewRegistry()
	r.Register(echoTool{name: "a"})

	kit, err := r.Toolkit()
	require.NoError(t, err)
	assert.Nil(t, kit.Names())
	assert.Zero(t, kit.Len())
}

func TestToolkitCallTurnsFailuresIntoResults(t *testing.T) {
	kit := NewToolkit(echoTool{name: "ok", reply: "fine"}, echoTool{name: "broken", err: errors.New("upstream down")})

	res := kit.Call(context.Background(), providershared.ToolCall{ID: "1", Name: "ok", Arguments: map[string]any{}})
	assert.True(t, res.Success)
	assert.Equal(t, "fine", res.Text())

	res = kit.Call(context.Background(), providershared.ToolCall{ID: "2", Name: "broken", Arguments: map[string]any{}})
	assert.False(t, res.Success)
	assert.Equal(t, "Error: upstream down", res.Text())

	res = kit.Call(context.Background(), providershared.ToolCall{ID: "3", Name: "ghost"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "ghost")

	res = kit.Call(context.Background(), providershared.ToolCall{ID: "4", Name: "ok", RawArguments: "{not json"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "could not decode arguments")

	var nilKit *Toolkit
	assert.Equal(t, 0, nilKit.Len())
	assert.False(t, nilKit.Call(context.Background(), providershared.ToolCall{Name: "ok"}).Success)
}

func TestToolkitWithReplacesSameName(t *testing.T) {
	base := NewToolkit(echoTool{name: "a", reply: "old"}, echoTool{name: "b"})
	extra := NewToolkit(echoTool{name: "a", reply: "new"}, echoTool{name: "c"})

	merged := base.With(extra)
	assert.Equal(t, []string{"a", "b", "c"}, merged.Names())
	assert.Equal(t, "new", merged.Call(context.Background(), providershared.ToolCall{Name: "a", Arguments: map[string]any{}}).Content)
	assert.Equal(t, []string{"a", "b"}, base.Names())

	var nilKit *Toolkit
	assert.Equal(t, []string{"a", "c"}, nilKit.With(extra).Names())
	assert.Equal(t, 0, nilKit.With(nil).Len())
}
