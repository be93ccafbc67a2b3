package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"research-assistant/llm/memory"
	"research-assistant/llm/providers/shared"
	"research-assistant/llm/tools"
	toolshared "research-assistant/llm/tools/shared"
)

// DefaultMaxToolRounds bounds tool-calling steps when Options leaves it unset.
const DefaultMaxToolRounds = 8

// ValidationError represents an agent configuration or input error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Config assembles the dependencies of an Agent.
type Config struct {
	Descriptor Descriptor
	Provider   shared.LLMProvider
	Store      memory.Store
	Toolkit    *tools.Toolkit
	Options    Options
	Logger     *zerolog.Logger
	// Now overrides the clock used for prompts and stats.
	Now func() time.Time
}

// Agent is one model-backed participant with its own instructions and tools.
type Agent struct {
	desc     Descriptor
	provider shared.LLMProvider
	store    memory.Store
	toolkit  *tools.Toolkit
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// New validates cfg and builds the agent.
func New(cfg Config) (*Agent, error) {
	if strings.TrimSpace(cfg.Descriptor.Name) == "" {
		return nil, &ValidationError{Field: "name", Message: "agent name is required"}
	}
	if cfg.Provider == nil {
		return nil, &ValidationError{Field: "provider", Message: "a model provider is required"}
	}
	if cfg.Store == nil {
		return nil, &ValidationError{Field: "store", Message: "a memory store is required"}
	}
	if cfg.Options.Model == "" {
		return nil, &ValidationError{Field: "model", Message: "model name is required"}
	}
	if cfg.Options.MaxToolRounds <= 0 {
		cfg.Options.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.Options.ToolConcurrency <= 0 {
		cfg.Options.ToolConcurrency = 1
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Agent{
		desc:     cfg.Descriptor.Clone(),
		provider: cfg.Provider,
		store:    cfg.Store,
		toolkit:  cfg.Toolkit,
		opts:     cfg.Options,
		logger:   logger.With().Str("agent", cfg.Descriptor.Name).Logger(),
		now:      cfg.Now,
	}, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.desc.Name }

// Descriptor returns a copy of the agent's descriptor.
func (a *Agent) Descriptor() Descriptor { return a.desc.Clone() }

// Toolkit returns the agent's own tools.
func (a *Agent) Toolkit() *tools.Toolkit { return a.toolkit }

// Run executes one task to completion and records it in the store. Once
// the input is valid the returned output is non-nil, even on error, and
// holds what was produced.
func (a *Agent) Run(ctx context.Context, in RunInput, emit Emitter) (*RunOutput, error) {
	if strings.TrimSpace(in.Task) == "" {
		return nil, &ValidationError{Field: "task", Message: "task is required"}
	}
	if in.SessionID == "" {
		return nil, &ValidationError{Field: "session_id", Message: "session id is required"}
	}
	emit = emit.Synchronized()

	out := &RunOutput{RunID: uuid.NewString(), Agent: a.desc.Name}
	out.Stats.StartedAt = a.now()

	kit := a.toolkit.With(in.Tools)
	msgs := a.history(ctx, in.SessionID)
	task := BuildTask(in.Task, in.Context)
	msgs = append(msgs, shared.Message{Role: shared.RoleUser, Content: task})
	system := NewPromptBuilder(a.desc, a.now).Build(in.Memories, kit.Names())

	content, err := a.loop(ctx, system, msgs, kit, emit, out)
	out.Content = content
	out.Stats.FinishedAt = a.now()
	out.Stats.Duration = out.Stats.FinishedAt.Sub(out.Stats.StartedAt)

	a.record(ctx, in.SessionID, task, out, err)

	if err != nil {
		a.logger.Error().Err(err).Int("rounds", out.Stats.Rounds).Msg("agent run failed")
		return out, fmt.Errorf("%s: %w", a.desc.Name, err)
	}
	a.logger.Info().
		Int("rounds", out.Stats.Rounds).
		Int("tool_calls", out.Stats.CallsMade).
		Dur("duration", out.Stats.Duration).
		Msg("agent run completed")
	return out, nil
}

// history replays the agent's previous runs of the session. Failed runs are
// skipped; a store error only costs the context.
func (a *Agent) history(ctx context.Context, sessionID string) []shared.Message {
	if a.desc.HistoryRuns <= 0 {
		return nil
	}
	runs, err := a.store.Runs(ctx, sessionID, a.desc.Name, a.desc.HistoryRuns)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to load history")
		return nil
	}
	var msgs []shared.Message
	for _, r := range runs {
		if r.Error != "" || r.Output == "" {
			continue
		}
		msgs = append(msgs,
			shared.Message{Role: shared.RoleUser, Content: r.Input},
			shared.Message{Role: shared.RoleAssistant, Content: r.Output},
		)
	}
	return msgs
}

func (a *Agent) loop(ctx context.Context, system string, msgs []shared.Message, kit *tools.Toolkit, emit Emitter, out *RunOutput) (string, error) {
	var earlier []string
	for round := 0; ; round++ {
		offer := kit.Len() > 0 && round < a.opts.MaxToolRounds
		req := &shared.CompletionRequest{
			System:   system,
			Messages: msgs,
			Options: shared.CompletionOptions{
				Model:       a.opts.Model,
				Temperature: a.opts.Temperature,
				MaxTokens:   a.opts.MaxTokens,
			},
		}
		if offer {
			req.Options.Tools = kit.Definitions()
			req.Options.ParallelTools = a.opts.ToolConcurrency > 1
		}

		text, calls, err := a.stream(ctx, req, emit, out)
		out.Stats.Rounds++
		if err != nil {
			return joinContent(earlier, text), err
		}
		if !offer || len(calls) == 0 {
			if strings.TrimSpace(text) == "" {
				return joinContent(earlier, ""), nil
			}
			return text, nil
		}
		if strings.TrimSpace(text) != "" {
			earlier = append(earlier, text)
		}

		msgs = append(msgs, shared.Message{Role: shared.RoleAssistant, Content: text, ToolCalls: calls})
		results := a.callTools(ctx, kit, calls, emit)
		for i, call := range calls {
			res := results[i]
			msgs = append(msgs, shared.Message{
				Role: shared.RoleTool,
				ToolInvocation: &shared.ToolInvocation{
					CallID:  call.ID,
					Name:    call.Name,
					RawText: res.Text(),
					IsError: !res.Success,
				},
			})
			out.ToolCalls = append(out.ToolCalls, memory.ToolCallRecord{
				Name:      call.Name,
				Arguments: call.Arguments,
				Result:    res.Text(),
				IsError:   !res.Success,
				Duration:  res.Stats.ExecutionTime,
			})
		}
		out.Stats.CallsMade += len(calls)
	}
}

func joinContent(earlier []string, last string) string {
	parts := append([]string(nil), earlier...)
	if strings.TrimSpace(last) != "" {
		parts = append(parts, last)
	}
	return strings.Join(parts, "\n\n")
}

// stream requests one completion and forwards its text as content events.
func (a *Agent) stream(ctx context.Context, req *shared.CompletionRequest, emit Emitter, out *RunOutput) (string, []shared.ToolCall, error) {
	ch, cancel, err := a.provider.StreamComplete(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer cancel()

	var b strings.Builder
	for chunk := range ch {
		if chunk.DeltaText != "" {
			b.WriteString(chunk.DeltaText)
			emit.Emit(Event{Type: EventContent, Agent: a.desc.Name, Text: chunk.DeltaText})
		}
		if !chunk.Done {
			continue
		}
		if chunk.Usage != nil {
			out.Stats.TokensIn += chunk.Usage.PromptTokens
			out.Stats.TokensOut += chunk.Usage.CompletionTokens
		}
		if chunk.Err != nil {
			return b.String(), nil, chunk.Err
		}
		return b.String(), chunk.ToolCalls, nil
	}
	// Closed without a final chunk: the context ended the stream.
	if err := ctx.Err(); err != nil {
		return b.String(), nil, err
	}
	return b.String(), nil, errors.New("stream ended without a final chunk")
}

// callTools executes the calls of one step, at most ToolConcurrency at a
// time. Results keep call order.
func (a *Agent) callTools(ctx context.Context, kit *tools.Toolkit, calls []shared.ToolCall, emit Emitter) []*toolshared.ToolResult {
	results := make([]*toolshared.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.ToolConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			emit.Emit(Event{Type: EventToolStarted, Agent: a.desc.Name, Tool: call.Name, Args: call.Arguments})
			res := kit.Call(gctx, call)
			d := res.Stats.ExecutionTime
			if !res.Success {
				a.logger.Warn().Str("tool", call.Name).Str("error", res.Error).Msg("tool call failed")
			} else {
				a.logger.Debug().Str("tool", call.Name).Dur("duration", d).Msg("tool call completed")
			}
			emit.Emit(Event{
				Type:     EventToolCompleted,
				Agent:    a.desc.Name,
				Tool:     call.Name,
				Args:     call.Arguments,
				Text:     CompletedText(call.Name, call.Arguments, d),
				Result:   res.Text(),
				IsError:  !res.Success,
				Duration: d,
			})
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// record appends the run to the shared store. Persistence failures are
// logged; the answer is still returned to the caller.
func (a *Agent) record(ctx context.Context, sessionID, input string, out *RunOutput, runErr error) {
	run := memory.Run{
		ID:        out.RunID,
		SessionID: sessionID,
		Agent:     a.desc.Name,
		Input:     input,
		Output:    out.Content,
		ToolCalls: out.ToolCalls,
		CreatedAt: out.Stats.FinishedAt,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// A cancelled run is still recorded.
	if err := a.store.AppendRun(context.WithoutCancel(ctx), run); err != nil {
		a.logger.Error().Err(err).Msg("failed to record run")
	}
}
