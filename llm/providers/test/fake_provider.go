package test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"research-assistant/llm/providers/shared"
)

// Turn is one scripted model reply: streamed text, tool calls, or a failure.
type Turn struct {
	Text      string
	ToolCalls []shared.ToolCall
	// Err fails the request before any chunk is produced.
	Err error
	// StreamErr is reported on the final chunk after Text was streamed.
	StreamErr error
}

type script struct {
	match string
	turns []Turn
	next  int
}

// FakeProvider implements LLMProvider for testing purposes
type FakeProvider struct {
	mu        sync.RWMutex
	scripts   []*script
	delays    map[string]time.Duration
	errors    map[string]error
	callCount int
	requests  []*shared.CompletionRequest
}

// NewFakeProvider creates a new fake provider for testing
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		delays: make(map[string]time.Duration),
		errors: make(map[string]error),
	}
}

// AddScript queues turns for requests whose system prompt or latest user
// message contains match. Each matching request consumes the next turn;
// scripts are tried in registration order and skipped once exhausted.
func (fp *FakeProvider) AddScript(match string, turns ...Turn) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.scripts = append(fp.scripts, &script{match: match, turns: turns})
}

// AddDelay adds a delay for requests whose latest user message is prompt
func (fp *FakeProvider) AddDelay(prompt string, delay time.Duration) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.delays[prompt] = delay
}

// AddError fails every request whose latest user message is prompt
func (fp *FakeProvider) AddError(prompt string, err error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.errors[prompt] = err
}

// GetCallCount returns the number of calls made to the provider
func (fp *FakeProvider) GetCallCount() int {
	fp.mu.RLock()
	defer fp.mu.RUnlock()
	return fp.callCount
}

// GetLastRequest returns the last request made to the provider
func (fp *FakeProvider) GetLastRequest() *shared.CompletionRequest {
	fp.mu.RLock()
	defer fp.mu.RUnlock()
	if len(fp.requests) == 0 {
		return nil
	}
	return fp.requests[len(fp.requests)-1]
}

// Requests returns every request received so far
func (fp *FakeProvider) Requests() []*shared.CompletionRequest {
	fp.mu.RLock()
	defer fp.mu.RUnlock()
	return append([]*shared.CompletionRequest(nil), fp.requests...)
}

// Name returns the provider name
func (fp *FakeProvider) Name() string { return "fake" }

// GetModelCapabilities returns capabilities for the specified model
func (fp *FakeProvider) GetModelCapabilities(model string) shared.ModelCapabilities {
	return shared.ModelCapabilities{
		Streaming:         true,
		Tools:             true,
		ParallelToolCalls: true,
		SystemMessage:     true,
		MaxContextTokens:  128000,
	}
}

// LastUserMessage returns the content of the latest user message of req.
func LastUserMessage(req *shared.CompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == shared.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func (fp *FakeProvider) next(ctx context.Context, req *shared.CompletionRequest) (Turn, error) {
	key := LastUserMessage(req)

	fp.mu.Lock()
	fp.callCount++
	fp.requests = append(fp.requests, req)
	delay := fp.delays[key]
	err := fp.errors[key]

	turn := Turn{Text: fmt.Sprintf("Mock response for: %s", key)}
	haystack := req.System + "\n" + key
	for _, s := range fp.scripts {
		if s.next < len(s.turns) && strings.Contains(haystack, s.match) {
			turn = s.turns[s.next]
			s.next++
			break
		}
	}
	fp.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return Turn{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return Turn{}, err
	}
	if turn.Err != nil {
		return Turn{}, turn.Err
	}
	return turn, nil
}

// Complete performs a mock completion request
func (fp *FakeProvider) Complete(ctx context.Context, req *shared.CompletionRequest) (*shared.CompletionResponse, error) {
	turn, err := fp.next(ctx, req)
	if err != nil {
		return nil, err
	}
	if turn.StreamErr != nil {
		return nil, turn.StreamErr
	}

	stop := "stop"
	if len(turn.ToolCalls) > 0 {
		stop = "tool_calls"
	}
	return &shared.CompletionResponse{
		Content:   turn.Text,
		ToolCalls: turn.ToolCalls,
		Messages: []shared.Message{
			{Role: shared.RoleAssistant, Content: turn.Text, ToolCalls: turn.ToolCalls},
		},
		Usage: shared.TokenUsage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
		StopReason: stop,
	}, nil
}

// StreamComplete performs a mock streaming completion request. Text is sent
// word by word; tool calls arrive on the final chunk.
func (fp *FakeProvider) StreamComplete(ctx context.Context, req *shared.CompletionRequest) (<-chan *shared.StreamChunk, func(), error) {
	turn, err := fp.next(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan *shared.StreamChunk, 32)

	go func() {
		defer close(ch)

		for _, piece := range splitKeepSpaces(turn.Text) {
			select {
			case <-ctx.Done():
				return
			case ch <- &shared.StreamChunk{DeltaText: piece}:
			}
		}

		select {
		case <-ctx.Done():
		case ch <- &shared.StreamChunk{
			Done:      true,
			ToolCalls: turn.ToolCalls,
			Err:       turn.StreamErr,
			Usage: &shared.TokenUsage{
				PromptTokens:     10,
				CompletionTokens: 20,
				TotalTokens:      30,
			},
		}:
		}
	}()

	return ch, cancel, nil
}

// splitKeepSpaces splits s into words that keep their trailing whitespace so
// the concatenation of the pieces equals s.
func splitKeepSpaces(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\n' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
