package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-assistant/api"
	"research-assistant/internal/config"
	"research-assistant/llm/agents"
	"research-assistant/llm/agents/specialists"
	"research-assistant/llm/agents/team"
	"research-assistant/llm/memory"
	providershared "research-assistant/llm/providers/shared"
	"research-assistant/llm/providers/test"
	"research-assistant/llm/services/conversations"
	"research-assistant/llm/tools"
	toolshared "research-assistant/llm/tools/shared"
)

type upperTool struct{}

func (upperTool) Name() string           { return "text_upper" }
func (upperTool) Description() string    { return "Uppercases text" }
func (upperTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (u upperTool) Definition() *providershared.ToolDef {
	return toolshared.Definition(u.Name(), u.Description(), u.Schema())
}
func (upperTool) Execute(_ context.Context, in *toolshared.ToolInput) (*toolshared.ToolResult, error) {
	s, ok := toolshared.StringArg(in.Data, "text")
	if !ok {
		return toolshared.Failure("text is required"), nil
	}
	return &toolshared.ToolResult{Success: true, Content: strings.ToUpper(s)}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *test.FakeProvider) {
	t.Helper()
	fp := test.NewFakeProvider()
	store := memory.NewInMemory()
	members := specialists.Descriptors(specialists.Settings{})
	manager := conversations.NewManager(func() (conversations.Runner, error) {
		return team.New(team.Config{
			Provider: fp,
			Store:    store,
			Members:  members,
			Options:  team.Options{HistoryRuns: 5, DelegationConcurrency: 2},
			Agent:    agents.Options{Model: "fake-model"},
		})
	}, conversations.Options{ClearOnReset: true})

	reg := tools.NewRegistry()
	reg.Register(upperTool{})

	srv, err := NewServer(config.ServerConfig{Address: "localhost:0"}, Deps{
		Sessions:    manager,
		Tools:       reg,
		Specialists: members,
		Model:       "fake-model",
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, fp
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(b))
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func chat(t *testing.T, url, query string) []sseEvent {
	t.Helper()
	body, err := json.Marshal(api.ChatRequest{Query: query})
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return readEvents(t, resp.Body)
}

func TestHealthAndIndex(t *testing.T) {
	ts, _ := newTestServer(t)

	var health map[string]string
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/health", nil, &health))
	assert.Equal(t, "healthy", health["status"])

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), "Research Assistant Team")
}

func TestChatStreamsAnswer(t *testing.T) {
	ts, fp := newTestServer(t)
	fp.AddScript("Your name is ResearchAssistantTeam.",
		test.Turn{ToolCalls: []providershared.ToolCall{{ID: "1", Name: team.DelegateToolName, Arguments: map[string]any{
			"member_id": agents.InternetSearcher, "task_description": "latest AI news",
		}}}},
		test.Turn{Text: "**AI** moved fast this week."},
	)

	var info api.SessionInfo
	require.Equal(t, http.StatusCreated, do(t, http.MethodPost, ts.URL+"/api/sessions", nil, &info))
	assert.True(t, strings.HasPrefix(info.ID, conversations.SessionPrefix))
	assert.Equal(t, "fake-model", info.Model)

	tru := true
	var settings conversations.Settings
	require.Equal(t, http.StatusOK, do(t, http.MethodPut, ts.URL+"/api/sessions/"+info.ID+"/settings", api.SettingsRequest{ShowToolLogs: &tru}, &settings))
	assert.True(t, settings.ShowToolLogs)

	events := chat(t, ts.URL+"/api/sessions/"+info.ID+"/chat", "What are the latest AI breakthroughs?")
	require.NotEmpty(t, events)

	var text strings.Builder
	var sawTool bool
	for _, ev := range events[:len(events)-1] {
		switch ev.name {
		case api.EventDelta:
			var d api.DeltaEvent
			require.NoError(t, json.Unmarshal([]byte(ev.data), &d))
			text.WriteString(d.Text)
		case api.EventTool:
			sawTool = true
			assert.Contains(t, ev.data, team.DelegateToolName)
		}
	}
	assert.True(t, sawTool)
	assert.Equal(t, "**AI** moved fast this week.", text.String())

	last := events[len(events)-1]
	require.Equal(t, api.EventDone, last.name)
	var done api.DoneEvent
	require.NoError(t, json.Unmarshal([]byte(last.data), &done))
	assert.Equal(t, info.ID, done.SessionID)
	assert.Contains(t, done.HTML, "<strong>AI</strong>")

	var got api.SessionInfo
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/sessions/"+info.ID, nil, &got))
	require.Len(t, got.Turns, 2)
	assert.Contains(t, got.Turns[1].HTML, "<strong>AI</strong>")

	var logs api.ToolLogsResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/sessions/"+info.ID+"/tool-logs", nil, &logs))
	assert.True(t, logs.Enabled)
	require.Len(t, logs.Entries, 1)
	assert.Contains(t, logs.Text, ") completed in ")

	var mem api.MemoryResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/sessions/"+info.ID+"/memory", nil, &mem))
	assert.Contains(t, mem.Dump, `"agent": "InternetSearcher"`)
}

func TestChatErrorEvent(t *testing.T) {
	ts, fp := newTestServer(t)
	fp.AddError("break please", &providershared.ProviderError{Code: providershared.ErrAuth, Message: "invalid api key"})

	var info api.SessionInfo
	do(t, http.MethodPost, ts.URL+"/api/sessions", nil, &info)
	events := chat(t, ts.URL+"/api/sessions/"+info.ID+"/chat", "break please")
	require.Len(t, events, 1)
	assert.Equal(t, api.EventError, events[0].name)

	var ev api.ErrorEvent
	require.NoError(t, json.Unmarshal([]byte(events[0].data), &ev))
	assert.Contains(t, ev.Detail, "invalid api key")

	var got api.SessionInfo
	do(t, http.MethodGet, ts.URL+"/api/sessions/"+info.ID, nil, &got)
	require.Len(t, got.Turns, 2)
	assert.True(t, got.Turns[1].Error)
	assert.True(t, strings.HasPrefix(got.Turns[1].Content, "Error: "))
}

func TestChatValidation(t *testing.T) {
	ts, _ := newTestServer(t)
	var info api.SessionInfo
	do(t, http.MethodPost, ts.URL+"/api/sessions", nil, &info)

	var e api.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/api/sessions/"+info.ID+"/chat", api.ChatRequest{}, &e))
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, ts.URL+"/api/sessions/team-session-nope/chat", api.ChatRequest{Query: "hi"}, &e))
	assert.Equal(t, "Session not found", e.Error)
}

func TestResetSession(t *testing.T) {
	ts, _ := newTestServer(t)
	var info api.SessionInfo
	do(t, http.MethodPost, ts.URL+"/api/sessions", nil, &info)
	chat(t, ts.URL+"/api/sessions/"+info.ID+"/chat", "hello")

	var fresh api.SessionInfo
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/sessions/"+info.ID+"/reset", nil, &fresh))
	assert.NotEqual(t, info.ID, fresh.ID)
	assert.Empty(t, fresh.Turns)

	var e api.ErrorResponse
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, ts.URL+"/api/sessions/"+info.ID, nil, &e))
}

func TestResetWhileAnsweringConflicts(t *testing.T) {
	ts, fp := newTestServer(t)
	fp.AddDelay("slow question", 300*time.Millisecond)
	var info api.SessionInfo
	do(t, http.MethodPost, ts.URL+"/api/sessions", nil, &info)

	done := make(chan int)
	go func() {
		body, _ := json.Marshal(api.ChatRequest{Query: "slow question"})
		resp, err := http.Post(ts.URL+"/api/sessions/"+info.ID+"/chat", "application/json", strings.NewReader(string(body)))
		if err != nil {
			done <- 0
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	require.Eventually(t, func() bool { return fp.GetCallCount() > 0 }, 2*time.Second, 5*time.Millisecond)

	var e api.ErrorResponse
	assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, ts.URL+"/api/sessions/"+info.ID+"/reset", nil, &e))
	assert.Equal(t, "Session is still answering", e.Error)

	assert.Equal(t, http.StatusOK, <-done)
	var fresh api.SessionInfo
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/sessions/"+info.ID+"/reset", nil, &fresh))
	assert.NotEqual(t, info.ID, fresh.ID)
}

func TestToolsEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	var list struct {
		Tools []api.ToolInfo `json:"tools"`
	}
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/tools", nil, &list))
	require.Len(t, list.Tools, 1)
	assert.Equal(t, "text_upper", list.Tools[0].Name)

	var res api.ToolResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/tools/text_upper", api.ExecuteToolRequest{Input: map[string]any{"text": "go"}}, &res))
	assert.True(t, res.Success)
	assert.Equal(t, "GO", res.Content)

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/api/tools/text_upper", api.ExecuteToolRequest{Input: map[string]any{}}, &res))
	assert.False(t, res.Success)
	assert.Equal(t, "text is required", res.Error)

	var e api.ErrorResponse
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, ts.URL+"/api/tools/nope", api.ExecuteToolRequest{Input: map[string]any{}}, &e))
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, ts.URL+"/api/tools/text_upper", map[string]any{}, &e))
}

func TestSpecialistsAndAbout(t *testing.T) {
	ts, _ := newTestServer(t)

	var list struct {
		Specialists []api.SpecialistInfo `json:"specialists"`
	}
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/specialists", nil, &list))
	assert.Len(t, list.Specialists, 7)

	var about api.AboutResponse
	require.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/about", nil, &about))
	assert.Len(t, about.Examples, len(conversations.Examples))
	assert.Contains(t, about.AboutHTML, "<em>coordinator</em>")
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/sessions", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRecovererReturns500(t *testing.T) {
	h := recoverer(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	manager := conversations.NewManager(func() (conversations.Runner, error) { return nil, nil }, conversations.Options{})
	srv, err := NewServer(config.ServerConfig{Address: "127.0.0.1:0"}, Deps{Sessions: manager, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	require.Len(t, srv.Addrs(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + srv.Addrs()[0] + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
