package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-assistant/llm/agents"
	"research-assistant/llm/agents/team"
	"research-assistant/llm/memory"
	"research-assistant/llm/services/conversations"
)

// scriptedRunner streams fixed chunks and records one run per query.
type scriptedRunner struct {
	store  memory.Store
	chunks []string
	err    error
}

func (r *scriptedRunner) Store() memory.Store { return r.store }

func (r *scriptedRunner) Run(ctx context.Context, sessionID, query string, emit agents.Emitter) (*team.Result, error) {
	if r.err != nil {
		return nil, r.err
	}
	emit.Emit(agents.Event{Type: agents.EventContent, Agent: team.Name, Text: "delegate_task_to_member(member_id=InternetSearcher) completed in 0.10s.\n"})
	emit.Emit(agents.Event{Type: agents.EventToolCompleted, Agent: team.Name, Tool: team.DelegateToolName, Text: "delegate_task_to_member(member_id=InternetSearcher) completed in 0.10s."})
	for _, c := range r.chunks {
		emit.Emit(agents.Event{Type: agents.EventContent, Agent: team.Name, Text: c})
	}
	out := &agents.RunOutput{Agent: team.Name}
	for _, c := range r.chunks {
		out.Content += c
	}
	if err := r.store.AppendRun(ctx, memory.Run{SessionID: sessionID, Agent: team.Name, Input: query, Output: out.Content}); err != nil {
		return nil, err
	}
	return &team.Result{RunOutput: out}, nil
}

func newModel(t *testing.T, runner *scriptedRunner) *Model {
	t.Helper()
	if runner.store == nil {
		runner.store = memory.NewInMemory()
	}
	manager := conversations.NewManager(func() (conversations.Runner, error) { return runner, nil }, conversations.Options{ClearOnReset: true})
	m, err := New(manager, Options{Model: "fake-model", GlamourStyle: "ascii"})
	require.NoError(t, err)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

func typeText(m *Model, s string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

// finish feeds the stream messages back into m until the stream closes.
func finish(t *testing.T, m *Model) {
	t.Helper()
	for cmd := m.listen(); cmd != nil; cmd = m.listen() {
		msgs := make(chan tea.Msg, 1)
		go func() { msgs <- cmd() }()
		select {
		case msg := <-msgs:
			m.Update(msg)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not finish")
		}
	}
}

func TestSubmitStreamsAnswer(t *testing.T) {
	m := newModel(t, &scriptedRunner{chunks: []string{"Quantum ", "chips ", "shipped."}})

	typeText(m, "What happened in tech?")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.streaming)
	assert.Empty(t, m.input.Value())

	finish(t, m)

	assert.False(t, m.streaming)
	turns := m.Session().Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "What happened in tech?", turns[0].Content)
	assert.Equal(t, "Quantum chips shipped.", turns[1].Content)

	transcript := m.Transcript()
	assert.Contains(t, transcript, "What happened in tech?")
	assert.Contains(t, transcript, "Quantum chips shipped.")
	assert.NotContains(t, transcript, "completed in")
}

func TestEmptyInputIsIgnored(t *testing.T) {
	m := newModel(t, &scriptedRunner{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.False(t, m.streaming)
	assert.Contains(t, m.Transcript(), "Research Assistant Team")
}

func TestErrorAnswerIsShown(t *testing.T) {
	m := newModel(t, &scriptedRunner{err: errors.New("invalid api key")})
	typeText(m, "hello")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	finish(t, m)

	require.Error(t, m.err)
	turns := m.Session().Turns()
	require.Len(t, turns, 2)
	assert.True(t, turns[1].Error)
	assert.Contains(t, m.Transcript(), "Error: invalid api key")
	assert.Contains(t, m.View(), "check your API keys")
}

func TestToolPaneRecordsCalls(t *testing.T) {
	m := newModel(t, &scriptedRunner{chunks: []string{"done"}})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.Equal(t, PaneTools, m.pane)
	assert.True(t, m.Session().Settings().ShowToolLogs)
	assert.Equal(t, "No tool calls recorded yet.", m.DebugText())

	typeText(m, "search something")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	finish(t, m)

	assert.Contains(t, m.DebugText(), "[ResearchAssistantTeam] delegate_task_to_member(member_id=InternetSearcher) completed in 0.10s.")
	assert.Contains(t, m.View(), "Tool calls")

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.Equal(t, PaneNone, m.pane)
	assert.False(t, m.Session().Settings().ShowToolLogs)
}

func TestMemoryPaneShowsRuns(t *testing.T) {
	m := newModel(t, &scriptedRunner{chunks: []string{"hi there"}})
	typeText(m, "remember me")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	finish(t, m)

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlO})
	assert.Equal(t, PaneMemory, m.pane)
	assert.True(t, m.Session().Settings().ShowMemory)
	assert.Contains(t, m.DebugText(), `"input": "remember me"`)
}

func TestResetStartsFreshSession(t *testing.T) {
	runner := &scriptedRunner{chunks: []string{"ok"}}
	m := newModel(t, runner)
	typeText(m, "first question")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	finish(t, m)
	old := m.Session().ID()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	m.Update(cmd())

	assert.NotEqual(t, old, m.Session().ID())
	assert.Empty(t, m.Session().Turns())
	runs, err := runner.store.Runs(context.Background(), old, "", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Contains(t, m.View(), "Memory cleared")
}

func TestResetWaitsForAnswer(t *testing.T) {
	m := newModel(t, &scriptedRunner{})
	m.streaming = true
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Nil(t, cmd)
	assert.Contains(t, m.status, "Wait")
	m.streaming = false
}

func TestEscQuits(t *testing.T) {
	m := newModel(t, &scriptedRunner{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestWindowSizeIgnoresZero(t *testing.T) {
	m := newModel(t, &scriptedRunner{})
	m.Update(tea.WindowSizeMsg{Width: 0, Height: 0})
	assert.Equal(t, 100, m.width)
	assert.Equal(t, 30, m.height)
}
