package agents

import (
	"fmt"
	"strings"
	"time"

	"research-assistant/llm/memory"
)

// PromptBuilder renders the system prompt of an agent.
type PromptBuilder struct {
	desc Descriptor
	now  func() time.Time
}

// NewPromptBuilder creates a builder for desc. now defaults to time.Now.
func NewPromptBuilder(desc Descriptor, now func() time.Time) *PromptBuilder {
	if now == nil {
		now = time.Now
	}
	return &PromptBuilder{desc: desc, now: now}
}

// Build returns the system prompt, including the session memories when given.
func (pb *PromptBuilder) Build(memories []memory.Record, tools []string) string {
	var b strings.Builder
	d := pb.desc

	if d.Description != "" {
		b.WriteString(d.Description)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Your name is %s.\n", d.Name)

	if len(d.Instructions) > 0 {
		b.WriteString("\n<instructions>\n")
		for _, inst := range d.Instructions {
			// Sub-items of a list keep their own dash.
			if strings.HasPrefix(inst, "- ") {
				b.WriteString("  ")
				b.WriteString(inst)
			} else {
				b.WriteString("- ")
				b.WriteString(inst)
			}
			b.WriteString("\n")
		}
		b.WriteString("</instructions>\n")
	}

	if d.AdditionalContext != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(d.AdditionalContext))
		b.WriteString("\n")
	}

	if len(tools) > 0 {
		b.WriteString("\n<tools>\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("</tools>\n")
	}

	if d.ExpectedOutput != "" {
		fmt.Fprintf(&b, "\n<expected_output>\n%s\n</expected_output>\n", d.ExpectedOutput)
	}

	var extra []string
	if d.Markdown {
		extra = append(extra, "Use markdown to format your answers.")
	}
	if d.AddDatetime {
		extra = append(extra, "The current time is "+pb.now().Format("2006-01-02 15:04:05 MST")+".")
	}
	if len(extra) > 0 {
		b.WriteString("\n<additional_information>\n")
		for _, e := range extra {
			fmt.Fprintf(&b, "- %s\n", e)
		}
		b.WriteString("</additional_information>\n")
	}

	if len(memories) > 0 {
		b.WriteString("\n<memories_from_previous_interactions>\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- [%s] %s\n", m.ID, m.Content)
		}
		b.WriteString("</memories_from_previous_interactions>\n")
	}

	return strings.TrimSpace(b.String())
}

// BuildTask joins a task with its context blocks into the user message.
func BuildTask(task string, context []string) string {
	if len(context) == 0 {
		return task
	}
	var b strings.Builder
	b.WriteString(task)
	for _, c := range context {
		if strings.TrimSpace(c) == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(c)
	}
	return b.String()
}
