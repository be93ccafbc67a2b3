package agents

import (
	"time"

	"research-assistant/llm/memory"
	"research-assistant/llm/tools"
)

// Descriptor is the static configuration of an agent. Treat it as
// immutable; use Clone before changing a copy.
type Descriptor struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Instructions []string `json:"instructions" yaml:"instructions"`
	// Tools names the registered tools the agent may call.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	// HistoryRuns is how many of the agent's previous runs in the session
	// are replayed as context.
	HistoryRuns    int    `json:"history_runs" yaml:"history_runs"`
	AddDatetime    bool   `json:"add_datetime" yaml:"add_datetime"`
	Markdown       bool   `json:"markdown" yaml:"markdown"`
	ExpectedOutput string `json:"expected_output,omitempty" yaml:"expected_output,omitempty"`
	// AdditionalContext is appended to the system prompt as is.
	AdditionalContext string `json:"additional_context,omitempty" yaml:"additional_context,omitempty"`
}

// Clone returns a deep copy.
func (d Descriptor) Clone() Descriptor {
	d.Instructions = append([]string(nil), d.Instructions...)
	d.Tools = append([]string(nil), d.Tools...)
	return d
}

// Options tune the run loop.
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	// MaxToolRounds bounds model steps that may call tools. When exhausted
	// one last completion without tools produces the answer.
	MaxToolRounds int
	// ToolConcurrency bounds how many tool calls of one step run at once.
	ToolConcurrency int
}

// RunInput is one task for an agent.
type RunInput struct {
	SessionID string
	Task      string
	// Context blocks are appended to the task, e.g. what other members
	// already found during this run.
	Context []string
	// Memories are injected into the system prompt.
	Memories []memory.Record
	// Tools are offered in addition to the agent's own toolkit.
	Tools *tools.Toolkit
}

// RunOutput is the result of a run.
type RunOutput struct {
	RunID     string                  `json:"run_id"`
	Agent     string                  `json:"agent"`
	Content   string                  `json:"content"`
	ToolCalls []memory.ToolCallRecord `json:"tool_calls,omitempty"`
	Stats     AgentStats              `json:"stats"`
}

// AgentStats summarizes the cost of a run.
type AgentStats struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	TokensIn   int           `json:"tokens_in"`
	TokensOut  int           `json:"tokens_out"`
	CallsMade  int           `json:"calls_made"`
	Rounds     int           `json:"rounds"`
}
