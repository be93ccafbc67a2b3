package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"research-assistant/llm/agents"
	"research-assistant/llm/agents/team"
	"research-assistant/llm/memory"
	"research-assistant/llm/services/stream"
)

// ErrBusy is returned when a query arrives while the session is still
// answering the previous one.
var ErrBusy = errors.New("session is busy with another query")

// EmptyAnswer replaces a synthesis that produced no text.
const EmptyAnswer = "I wasn't able to put together an answer for that. Please try rephrasing the question."

// Role of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation as shown to the user.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Error     bool      `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Settings are the user-facing debug toggles of a session.
type Settings struct {
	ShowMemory   bool `json:"show_memory"`
	ShowToolLogs bool `json:"show_tool_logs"`
}

// ToolLogEntry is one finished tool call of a query.
type ToolLogEntry struct {
	Agent    string         `json:"agent"`
	Tool     string         `json:"tool,omitempty"`
	Text     string         `json:"text"`
	Args     map[string]any `json:"args,omitempty"`
	Result   string         `json:"result,omitempty"`
	IsError  bool           `json:"is_error,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
	At       time.Time      `json:"at"`
}

// Sink receives the visible answer while it streams.
type Sink interface {
	OnDelta(text string)
	OnTool(entry ToolLogEntry)
}

// SinkFuncs adapts functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	Delta func(string)
	Tool  func(ToolLogEntry)
}

func (s SinkFuncs) OnDelta(text string) {
	if s.Delta != nil {
		s.Delta(text)
	}
}

func (s SinkFuncs) OnTool(entry ToolLogEntry) {
	if s.Tool != nil {
		s.Tool(entry)
	}
}

// Runner answers queries for a session; *team.Team implements it.
type Runner interface {
	Run(ctx context.Context, sessionID, query string, emit agents.Emitter) (*team.Result, error)
	Store() memory.Store
}

// Answer is the outcome of Ask.
type Answer struct {
	Content string         `json:"content"`
	Error   bool           `json:"error,omitempty"`
	ToolLog []ToolLogEntry `json:"tool_log,omitempty"`
	Result  *team.Result   `json:"-"`
}

// Session is one conversation with the team.
type Session struct {
	id        string
	createdAt time.Time
	runner    Runner
	filter    *stream.Filter
	logger    zerolog.Logger
	now       func() time.Time

	// busy serializes queries.
	busy sync.Mutex

	mu       sync.RWMutex
	turns    []Turn
	toolLog  []ToolLogEntry
	memories []memory.Record
	runs     []memory.Run
	settings Settings
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Runner returns the team answering this session.
func (s *Session) Runner() Runner { return s.runner }

// Turns returns a copy of the conversation.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns...)
}

// ToolLog returns the tool calls of the last query that made any, recorded
// while tool logs are enabled.
func (s *Session) ToolLog() []ToolLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ToolLogEntry(nil), s.toolLog...)
}

// Settings returns the debug toggles.
func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings replaces the debug toggles.
func (s *Session) UpdateSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// Memories returns the memory records seen after the last query.
func (s *Session) Memories() []memory.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]memory.Record(nil), s.memories...)
}

// MemoryDump renders the team memory of the session as indented JSON.
func (s *Session) MemoryDump() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dump := struct {
		SessionID string          `json:"session_id"`
		Memories  []memory.Record `json:"memories"`
		Runs      []memory.Run    `json:"runs"`
	}{s.id, s.memories, s.runs}
	if dump.Memories == nil {
		dump.Memories = []memory.Record{}
	}
	if dump.Runs == nil {
		dump.Runs = []memory.Run{}
	}
	b, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Sprintf("failed to render memory: %v", err)
	}
	return string(b)
}

// Ask sends query to the team and streams the visible answer to sink. The
// assistant turn is always recorded; on failure it reads "Error: <err>" and
// the error is returned as well.
func (s *Session) Ask(ctx context.Context, query string, sink Sink) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &agents.ValidationError{Field: "query", Message: "query is required"}
	}
	if !s.busy.TryLock() {
		return nil, ErrBusy
	}
	defer s.busy.Unlock()
	if sink == nil {
		sink = SinkFuncs{}
	}

	s.appendTurn(Turn{Role: RoleUser, Content: query, CreatedAt: s.now()})
	settings := s.Settings()

	var display stream.DisplayBuffer
	var logMu sync.Mutex
	var toolLog []ToolLogEntry
	addLog := func(e ToolLogEntry) {
		logMu.Lock()
		toolLog = append(toolLog, e)
		logMu.Unlock()
		if settings.ShowToolLogs {
			sink.OnTool(e)
		}
	}

	emit := func(ev agents.Event) {
		switch ev.Type {
		case agents.EventContent:
			if s.filter.Classify(ev.Text) == stream.Marker {
				addLog(ToolLogEntry{Agent: ev.Agent, Text: strings.TrimSpace(ev.Text), At: s.now()})
				return
			}
			display.Append(ev.Text)
			sink.OnDelta(ev.Text)
		case agents.EventToolCompleted:
			addLog(ToolLogEntry{
				Agent:    ev.Agent,
				Tool:     ev.Tool,
				Text:     ev.Text,
				Args:     ev.Args,
				Result:   ev.Result,
				IsError:  ev.IsError,
				Duration: ev.Duration,
				At:       s.now(),
			})
		}
	}

	start := s.now()
	res, runErr := s.runner.Run(ctx, s.id, query, emit)

	answer := &Answer{Result: res, ToolLog: toolLog}
	switch {
	case runErr != nil:
		answer.Content = "Error: " + runErr.Error()
		answer.Error = true
		s.logger.Error().Err(runErr).Str("session_id", s.id).Msg("query failed")
	case strings.TrimSpace(display.String()) != "":
		answer.Content = strings.TrimSpace(display.String())
	case res != nil && res.RunOutput != nil && strings.TrimSpace(res.Content) != "":
		answer.Content = strings.TrimSpace(res.Content)
	default:
		answer.Content = EmptyAnswer
	}

	s.appendTurn(Turn{Role: RoleAssistant, Content: answer.Content, Error: answer.Error, CreatedAt: s.now()})
	s.refreshMemory(ctx)

	s.mu.Lock()
	if settings.ShowToolLogs && len(toolLog) > 0 {
		s.toolLog = toolLog
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", s.id).
		Int("tool_calls", len(toolLog)).
		Dur("duration", s.now().Sub(start)).
		Msg("query answered")

	if runErr != nil {
		return answer, runErr
	}
	return answer, nil
}

func (s *Session) appendTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, t)
}

func (s *Session) refreshMemory(ctx context.Context) {
	store := s.runner.Store()
	ctx = context.WithoutCancel(ctx)
	memories, err := store.Memories(ctx, s.id)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read memories")
		return
	}
	runs, err := store.Runs(ctx, s.id, "", 0)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read runs")
		return
	}
	s.mu.Lock()
	s.memories = memories
	s.runs = runs
	s.mu.Unlock()
}
