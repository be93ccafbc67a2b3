package test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"research-assistant/llm/providers/shared"
)

func request(system, user string) *shared.CompletionRequest {
	return &shared.CompletionRequest{
		System:   system,
		Messages: []shared.Message{{Role: shared.RoleUser, Content: user}},
		Options:  shared.CompletionOptions{Model: "fake"},
	}
}

func collect(t *testing.T, ch <-chan *shared.StreamChunk) (string, *shared.StreamChunk) {
	t.Helper()
	var b strings.Builder
	var final *shared.StreamChunk
	for c := range ch {
		b.WriteString(c.DeltaText)
		if c.Done {
			final = c
		}
	}
	return b.String(), final
}

func TestScriptsAdvancePerMatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	fp := NewFakeProvider()
	fp.AddScript("Coordinator",
		Turn{ToolCalls: []shared.ToolCall{{ID: "1", Name: "delegate_task_to_member"}}},
		Turn{Text: "final answer"},
	)

	ch, cancel, err := fp.StreamComplete(context.Background(), request("You are the Coordinator", "q"))
	require.NoError(t, err)
	text, final := collect(t, ch)
	cancel()
	assert.Empty(t, text)
	require.NotNil(t, final)
	assert.Len(t, final.ToolCalls, 1)

	ch, cancel, err = fp.StreamComplete(context.Background(), request("You are the Coordinator", "q"))
	require.NoError(t, err)
	text, _ = collect(t, ch)
	cancel()
	assert.Equal(t, "final answer", text)

	// Script exhausted: default response.
	resp, err := fp.Complete(context.Background(), request("You are the Coordinator", "q"))
	require.NoError(t, err)
	assert.Equal(t, "Mock response for: q", resp.Content)
	assert.Equal(t, 3, fp.GetCallCount())
}

func TestErrorsAndStreamErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	fp := NewFakeProvider()
	boom := errors.New("boom")
	fp.AddError("fail", boom)
	fp.AddScript("partial", Turn{Text: "half an", StreamErr: boom})

	_, _, err := fp.StreamComplete(context.Background(), request("", "fail"))
	assert.ErrorIs(t, err, boom)

	ch, cancel, err := fp.StreamComplete(context.Background(), request("", "partial"))
	require.NoError(t, err)
	defer cancel()
	text, final := collect(t, ch)
	assert.Equal(t, "half an", text)
	assert.ErrorIs(t, final.Err, boom)
}

func TestSplitKeepSpaces(t *testing.T) {
	s := "one two\nthree"
	assert.Equal(t, s, strings.Join(splitKeepSpaces(s), ""))
	assert.Len(t, splitKeepSpaces(s), 3)
	assert.Empty(t, splitKeepSpaces(""))
}
