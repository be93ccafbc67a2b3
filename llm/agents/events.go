package agents

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// EventType classifies what an agent reports while running.
type EventType string

const (
	// EventContent carries a fragment of model output.
	EventContent EventType = "content"
	// EventToolStarted is sent before a tool executes.
	EventToolStarted EventType = "tool_started"
	// EventToolCompleted is sent after a tool finished, successfully or not.
	EventToolCompleted EventType = "tool_completed"
)

// Event is one observation from a running agent.
type Event struct {
	Type  EventType
	Agent string
	// Text is the content fragment, or the human readable tool summary.
	Text     string
	Tool     string
	Args     map[string]any
	Result   string
	IsError  bool
	Duration time.Duration
}

// Emitter receives events. It may be nil.
type Emitter func(Event)

// Emit delivers ev when e is set.
func (e Emitter) Emit(ev Event) {
	if e != nil {
		e(ev)
	}
}

// Synchronized returns an emitter that serializes calls to e.
func (e Emitter) Synchronized() Emitter {
	if e == nil {
		return nil
	}
	var mu sync.Mutex
	return func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		e(ev)
	}
}

// FormatCall renders a tool call as name(k=v, ...), keys sorted.
func FormatCall(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, args[k])
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// CompletedText is the summary line of a finished tool call.
func CompletedText(name string, args map[string]any, d time.Duration) string {
	return fmt.Sprintf("%s completed in %.2fs.", FormatCall(name, args), d.Seconds())
}
