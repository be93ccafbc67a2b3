package team

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-assistant/llm/agents"
	"research-assistant/llm/agents/specialists"
	"research-assistant/llm/memory"
	"research-assistant/llm/providers/shared"
	"research-assistant/llm/providers/test"
	toolshared "research-assistant/llm/tools/shared"
)

const coordinator = "Your name is ResearchAssistantTeam."

func member(name string) string { return "Your name is " + name + "." }

func delegateCall(id, member, task string) shared.ToolCall {
	return shared.ToolCall{ID: id, Name: DelegateToolName, Arguments: map[string]any{
		"member_id":        member,
		"task_description": task,
	}}
}

type events struct {
	mu  sync.Mutex
	all []agents.Event
}

func (e *events) emit(ev agents.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, ev)
}

func (e *events) contentFrom() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[string]string{}
	for _, ev := range e.all {
		if ev.Type == agents.EventContent {
			out[ev.Agent] += ev.Text
		}
	}
	return out
}

func (e *events) completedTools() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.all {
		if ev.Type == agents.EventToolCompleted {
			out = append(out, ev.Text)
		}
	}
	return out
}

func newTeam(t *testing.T, fp *test.FakeProvider, store memory.Store, opts Options) *Team {
	t.Helper()
	tm, err := New(Config{
		Provider: fp,
		Store:    store,
		Members:  specialists.Descriptors(specialists.Settings{EmailTo: "team@example.com"}),
		Options:  opts,
		Agent:    agents.Options{Model: "fake-model", MaxToolRounds: 4},
	})
	require.NoError(t, err)
	return tm
}

func requestFor(fp *test.FakeProvider, agentLine string) []*shared.CompletionRequest {
	var out []*shared.CompletionRequest
	for _, r := range fp.Requests() {
		if strings.Contains(r.System, agentLine) {
			out = append(out, r)
		}
	}
	return out
}

func TestNewRequiresGeneralAssistant(t *testing.T) {
	descs := specialists.Descriptors(specialists.Settings{})
	_, err := New(Config{
		Provider: test.NewFakeProvider(),
		Store:    memory.NewInMemory(),
		Members:  descs[:2],
		Agent:    agents.Options{Model: "m"},
	})
	var ve *agents.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "members", ve.Field)

	_, err = New(Config{
		Provider: test.NewFakeProvider(),
		Store:    memory.NewInMemory(),
		Members:  descs,
		Options:  Options{Routing: "dice"},
		Agent:    agents.Options{Model: "m"},
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "routing", ve.Field)
}

func TestCoordinatorDelegatesAndSynthesizes(t *testing.T) {
	const url = "https://youtu.be/dQw4w9WgXcQ"
	fp := test.NewFakeProvider()
	fp.AddScript(member(agents.YouTubeAnalyst), test.Turn{Text: "A music video. Source: " + url})
	fp.AddScript(member(agents.EmailAssistant), test.Turn{Text: "Email sent to team@example.com."})
	fp.AddScript(coordinator,
		test.Turn{ToolCalls: []shared.ToolCall{
			delegateCall("d1", agents.YouTubeAnalyst, "Summarize "+url),
			delegateCall("d2", agents.EmailAssistant, "Email the summary"),
		}},
		test.Turn{Text: "Here is the summary of " + url + ". The email was sent."},
	)
	store := memory.NewInMemory()
	tm := newTeam(t, fp, store, Options{DelegationConcurrency: 2, HistoryRuns: 5})

	ev := &events{}
	res, err := tm.Run(context.Background(), "s1", "Summarize "+url+" and email it", ev.emit)
	require.NoError(t, err)
	assert.Contains(t, res.Content, url)
	require.Len(t, res.Members, 2)

	// Member text stays out of the stream; the coordinator's is forwarded.
	content := ev.contentFrom()
	assert.Equal(t, res.Content, content[Name])
	assert.NotContains(t, content, agents.YouTubeAnalyst)
	assert.NotContains(t, content, agents.EmailAssistant)

	completed := ev.completedTools()
	require.Len(t, completed, 2)
	for _, c := range completed {
		assert.True(t, strings.HasPrefix(c, DelegateToolName+"("), c)
	}

	// Tool results reach the coordinator in call order.
	final := requestFor(fp, coordinator)[1]
	msgs := final.Messages
	assert.Equal(t, "d1", msgs[len(msgs)-2].ToolInvocation.CallID)
	assert.Contains(t, msgs[len(msgs)-2].ToolInvocation.RawText, url)
	assert.Equal(t, "Email sent to team@example.com.", msgs[len(msgs)-1].ToolInvocation.RawText)

	// Every participant recorded its run in the one shared store.
	for _, name := range []string{Name, agents.YouTubeAnalyst, agents.EmailAssistant} {
		runs, err := store.Runs(context.Background(), "s1", name, 0)
		require.NoError(t, err)
		assert.Len(t, runs, 1, name)
	}

	// The email member was instructed with the configured default recipient.
	emailReq := requestFor(fp, member(agents.EmailAssistant))[0]
	assert.Contains(t, emailReq.System, "Default recipient is team@example.com")
}

func TestParallelDelegation(t *testing.T) {
	fp := test.NewFakeProvider()
	fp.AddDelay("search one", 100*time.Millisecond)
	fp.AddDelay("search two", 100*time.Millisecond)
	fp.AddScript(coordinator,
		test.Turn{ToolCalls: []shared.ToolCall{
			delegateCall("a", agents.InternetSearcher, "search one"),
			delegateCall("b", agents.GitHubResearcher, "search two"),
		}},
		test.Turn{Text: "combined"},
	)
	tm := newTeam(t, fp, memory.NewInMemory(), Options{DelegationConcurrency: 2})

	start := time.Now()
	res, err := tm.Run(context.Background(), "s", "find both", nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 190*time.Millisecond)
	assert.Len(t, res.Members, 2)
}

func TestUnknownMemberFallsBackToGeneralAssistant(t *testing.T) {
	fp := test.NewFakeProvider()
	fp.AddScript(coordinator,
		test.Turn{ToolCalls: []shared.ToolCall{delegateCall("x", "Astrologer", "read the stars")}},
		test.Turn{Text: "done"},
	)
	store := memory.NewInMemory()
	tm := newTeam(t, fp, store, Options{})

	res, err := tm.Run(context.Background(), "s", "horoscope please", nil)
	require.NoError(t, err)
	require.Len(t, res.Members, 1)
	assert.Equal(t, agents.GeneralAssistant, res.Members[0].Member)

	runs, err := store.Runs(context.Background(), "s", agents.GeneralAssistant, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "read the stars", runs[0].Input)
}

func TestMemberIDMatchingIsLenient(t *testing.T) {
	tm := newTeam(t, test.NewFakeProvider(), memory.NewInMemory(), Options{})
	for _, id := range []string{"HackerNewsMonitor", "hacker-news-monitor", "hackernewsmonitor"} {
		m, ok := tm.Member(id)
		assert.True(t, ok, id)
		assert.Equal(t, agents.HackerNewsMonitor, m.Name())
	}
}

func TestMemberFailureIsBestEffort(t *testing.T) {
	fp := test.NewFakeProvider()
	fp.AddError("crawl the site", &shared.ProviderError{Code: shared.ErrUnavailable, Message: "model unavailable"})
	fp.AddScript(coordinator,
		test.Turn{ToolCalls: []shared.ToolCall{delegateCall("c", agents.WebCrawler, "crawl the site")}},
		test.Turn{Text: "I could not read the site, but here is what I know."},
	)
	tm := newTeam(t, fp, memory.NewInMemory(), Options{})

	res, err := tm.Run(context.Background(), "s", "what does example.com say", nil)
	require.NoError(t, err)
	require.Len(t, res.Members, 1)
	assert.True(t, res.Members[0].Failed())
	assert.Equal(t, "Member WebCrawler failed: model unavailable", res.Members[0].Text())

	final := requestFor(fp, coordinator)[1]
	last := final.Messages[len(final.Messages)-1]
	assert.Equal(t, "Member WebCrawler failed: model unavailable", last.ToolInvocation.RawText)
	assert.NotEmpty(t, res.Content)
}

func TestMembersShareInteractionsWithinRun(t *testing.T) {
	fp := test.NewFakeProvider()
	fp.AddScript(member(agents.InternetSearcher), test.Turn{Text: "Go 1.24 shipped in February. https://go.dev/doc/go1.24"})
	fp.AddScript(coordinator,
		test.Turn{ToolCalls: []shared.ToolCall{delegateCall("1", agents.InternetSearcher, "find the Go release")}},
		test.Turn{ToolCalls: []shared.ToolCall{delegateCall("2", agents.GeneralAssistant, "write it up")}},
		test.Turn{Text: "final"},
	)
	tm := newTeam(t, fp, memory.NewInMemory(), Options{})

	_, err := tm.Run(context.Background(), "s", "what's new in go", nil)
	require.NoError(t, err)

	general := requestFor(fp, member(agents.GeneralAssistant))
	require.Len(t, general, 1)
	task := test.LastUserMessage(general[0])
	assert.True(t, strings.HasPrefix(task, "write it up"))
	assert.Contains(t, task, "<member_interactions>")
	assert.Contains(t, task, "Member: InternetSearcher")
	assert.Contains(t, task, "https://go.dev/doc/go1.24")
}

func TestShowMemberResponsesForwardsMemberContent(t *testing.T) {
	fp := test.NewFakeProvider()
	fp.AddScript(coordinator,
		test.Turn{ToolCalls: []shared.ToolCall{delegateCall("1", agents.GeneralAssistant, "say hi")}},
		test.Turn{Text: "final"},
	)
	tm := newTeam(t, fp, memory.NewInMemory(), Options{ShowMemberResponses: true})

	ev := &events{}
	_, err := tm.Run(context.Background(), "s", "hi", ev.emit)
	require.NoError(t, err)
	assert.Equal(t, "Mock response for: say hi", ev.contentFrom()[agents.GeneralAssistant])
}

func TestMemoryToolAndInjection(t *testing.T) {
	fp := test.NewFakeProvider()
	fp.AddScript(coordinator,
		test.Turn{ToolCalls: []shared.ToolCall{{ID: "m", Name: MemoryToolName, Arguments: map[string]any{
			"action": "add",
			"memory": "User works on a Go CLI called gh-dash",
			"topics": []any{"projects"},
		}}}},
		test.Turn{Text: "Noted."},
	)
	store := memory.NewInMemory()
	tm := newTeam(t, fp, store, Options{HistoryRuns: 5})
	ctx := context.Background()

	_, err := tm.Run(ctx, "s", "remember that I work on gh-dash", nil)
	require.NoError(t, err)

	recs, err := store.Memories(ctx, "s")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"projects"}, recs[0].Topics)

	_, err = tm.Run(ctx, "s", "what do I work on?", nil)
	require.NoError(t, err)
	last := fp.GetLastRequest()
	assert.Contains(t, last.System, "User works on a Go CLI called gh-dash")
	// The previous team turn is replayed as history.
	assert.Equal(t, "remember that I work on gh-dash", last.Messages[0].Content)

	// Other sessions see nothing.
	other, err := store.Memories(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryToolActions(t *testing.T) {
	store := memory.NewInMemory()
	tool := &memoryTool{store: store, sessionID: "s"}
	ctx := context.Background()
	rec, err := store.AddMemory(ctx, "s", "likes tea", nil)
	require.NoError(t, err)

	res, err := tool.Execute(ctx, toolInput(map[string]any{"action": "update", "memory_id": rec.ID, "memory": "likes coffee"}))
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = tool.Execute(ctx, toolInput(map[string]any{"action": "delete", "memory_id": "nope"}))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no memory with id nope")

	res, err = tool.Execute(ctx, toolInput(map[string]any{"action": "forget"}))
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = tool.Execute(ctx, toolInput(map[string]any{"action": "delete", "memory_id": rec.ID}))
	require.NoError(t, err)
	assert.True(t, res.Success)
	recs, _ := store.Memories(ctx, "s")
	assert.Empty(t, recs)
}

func TestSearchMemoryReachesCoordinator(t *testing.T) {
	store := memory.NewInMemory()
	ctx := context.Background()
	_, err := store.AddMemory(ctx, "s", "User's sister lives in Lisbon", []string{"family"})
	require.NoError(t, err)
	_, err = store.AddMemory(ctx, "s", "User prefers short answers", nil)
	require.NoError(t, err)

	fp := test.NewFakeProvider()
	fp.AddScript(coordinator,
		test.Turn{ToolCalls: []shared.ToolCall{{ID: "q", Name: MemorySearchToolName, Arguments: map[string]any{
			"query": "where does my sister live",
			"limit": 3.0,
		}}}},
		test.Turn{Text: "Your sister lives in Lisbon."},
	)
	tm := newTeam(t, fp, store, Options{})

	res, err := tm.Run(ctx, "s", "where does my sister live?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Your sister lives in Lisbon.", res.Content)

	coord := requestFor(fp, coordinator)
	require.Len(t, coord, 2)
	var recalled *shared.ToolInvocation
	for _, m := range coord[1].Messages {
		if m.Role == shared.RoleTool && m.ToolInvocation.Name == MemorySearchToolName {
			recalled = m.ToolInvocation
		}
	}
	require.NotNil(t, recalled)
	assert.False(t, recalled.IsError)
	assert.Contains(t, recalled.RawText, "User's sister lives in Lisbon (topics: family)")
	assert.NotContains(t, recalled.RawText, "short answers")
}

func TestSearchMemoryTool(t *testing.T) {
	store := memory.NewInMemory()
	tool := &searchMemoryTool{store: store, sessionID: "s"}
	ctx := context.Background()
	for _, c := range []string{"golang generics", "golang modules", "golang testing", "rust traits"} {
		_, err := store.AddMemory(ctx, "s", c, nil)
		require.NoError(t, err)
	}

	res, err := tool.Execute(ctx, &toolshared.ToolInput{Data: map[string]any{"query": "golang", "limit": 2}})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Len(t, res.Data["memory_ids"], 2)
	assert.NotContains(t, res.Content, "rust")

	res, err = tool.Execute(ctx, &toolshared.ToolInput{Data: map[string]any{"query": "kubernetes"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, `No memories matched "kubernetes".`, res.Content)

	res, err = tool.Execute(ctx, &toolshared.ToolInput{Data: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestRulesRouting(t *testing.T) {
	const url = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	fp := test.NewFakeProvider()
	fp.AddScript(member(agents.YouTubeAnalyst), test.Turn{Text: "Summary of " + url})
	tm := newTeam(t, fp, memory.NewInMemory(), Options{Routing: RoutingRules})

	res, err := tm.Run(context.Background(), "s", "Summarize "+url, nil)
	require.NoError(t, err)
	require.Len(t, res.Members, 1)
	assert.Equal(t, agents.YouTubeAnalyst, res.Members[0].Member)

	coord := requestFor(fp, coordinator)
	require.Len(t, coord, 1)
	task := test.LastUserMessage(coord[0])
	assert.Contains(t, task, "<member_responses>")
	assert.Contains(t, task, "## YouTubeAnalyst\nSummary of "+url)

	var offered []string
	for _, d := range coord[0].Options.Tools {
		offered = append(offered, d.Name)
	}
	assert.Equal(t, []string{MemoryToolName, MemorySearchToolName}, offered)
}

func TestCoordinatorFailureIsReturned(t *testing.T) {
	boom := errors.New("provider exploded")
	fp := test.NewFakeProvider()
	fp.AddError("hello", boom)
	tm := newTeam(t, fp, memory.NewInMemory(), Options{})

	res, err := tm.Run(context.Background(), "s", "hello", nil)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, res)
}

func toolInput(data map[string]any) *toolshared.ToolInput {
	return &toolshared.ToolInput{Name: MemoryToolName, Data: data}
}
