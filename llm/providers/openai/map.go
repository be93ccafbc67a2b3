package openai

import (
	"encoding/json"
	"fmt"
	"sort"

	"research-assistant/llm/providers/shared"

	"github.com/sashabaranov/go-openai"
)

// ToOpenAIRequest converts a shared CompletionRequest to OpenAI format
func ToOpenAIRequest(req *shared.CompletionRequest) (*openai.ChatCompletionRequest, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}

		if len(m.ToolCalls) > 0 {
			toolCalls := make([]openai.ToolCall, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				args, err := encodeArguments(tc)
				if err != nil {
					return nil, fmt.Errorf("tool call %s: %w", tc.Name, err)
				}
				toolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: args,
					},
				}
			}
			msg.ToolCalls = toolCalls
		}

		if m.ToolInvocation != nil {
			msg.Role = openai.ChatMessageRoleTool
			msg.Content = m.ToolInvocation.RawText
			msg.ToolCallID = m.ToolInvocation.CallID
		}

		msgs = append(msgs, msg)
	}

	o := req.Options
	openaiReq := openai.ChatCompletionRequest{
		Model:       o.Model,
		Messages:    msgs,
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
		TopP:        o.TopP,
		Stop:        o.Stop,
	}

	if len(o.Tools) > 0 {
		tools := make([]openai.Tool, len(o.Tools))
		for i, t := range o.Tools {
			tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.JSONSchema,
				},
			}
		}
		openaiReq.Tools = tools
		openaiReq.ToolChoice = "auto"
	}

	return &openaiReq, nil
}

func encodeArguments(tc shared.ToolCall) (string, error) {
	if tc.Arguments == nil {
		if tc.RawArguments != "" {
			return tc.RawArguments, nil
		}
		return "{}", nil
	}
	b, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeArguments parses the JSON argument text of a tool call. Invalid JSON
// is kept verbatim in RawArguments.
func DecodeArguments(name, id, raw string) shared.ToolCall {
	call := shared.ToolCall{Name: name, ID: id}
	if raw == "" {
		call.Arguments = map[string]any{}
		return call
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		call.RawArguments = raw
		return call
	}
	call.Arguments = args
	return call
}

// ToOpenAIStreamRequest converts a shared CompletionRequest to OpenAI streaming format
func ToOpenAIStreamRequest(req *shared.CompletionRequest) (*openai.ChatCompletionRequest, error) {
	r, err := ToOpenAIRequest(req)
	if err != nil {
		return nil, err
	}
	r.Stream = true
	return r, nil
}

// FromOpenAIResponse converts an OpenAI response to shared format
func FromOpenAIResponse(resp openai.ChatCompletionResponse) *shared.CompletionResponse {
	out := &shared.CompletionResponse{
		Usage: shared.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	out.StopReason = string(choice.FinishReason)

	msg := shared.Message{
		Role:    shared.RoleAssistant,
		Content: choice.Message.Content,
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, DecodeArguments(tc.Function.Name, tc.ID, tc.Function.Arguments))
	}
	out.ToolCalls = msg.ToolCalls
	out.Messages = append(out.Messages, msg)
	return out
}

// FromOpenAIStream converts an OpenAI streaming response to shared format.
// Tool call fragments are folded into acc rather than emitted.
func FromOpenAIStream(resp openai.ChatCompletionStreamResponse, acc *toolCallAccumulator) *shared.StreamChunk {
	chunk := &shared.StreamChunk{}

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		chunk.DeltaText = choice.Delta.Content
		for _, tc := range choice.Delta.ToolCalls {
			acc.Add(tc)
		}
	}

	return chunk
}

// toolCallAccumulator assembles streamed tool call fragments by index.
type toolCallAccumulator struct {
	calls map[int]*partialCall
	next  int
}

type partialCall struct {
	id   string
	name string
	args []byte
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int]*partialCall)}
}

// Add folds one streamed fragment into the call it belongs to.
func (a *toolCallAccumulator) Add(tc openai.ToolCall) {
	idx := a.next
	if tc.Index != nil {
		idx = *tc.Index
	} else if tc.ID == "" && len(a.calls) > 0 {
		// Continuation without index belongs to the latest call.
		idx = a.next - 1
	}
	pc, ok := a.calls[idx]
	if !ok {
		pc = &partialCall{}
		a.calls[idx] = pc
		if idx >= a.next {
			a.next = idx + 1
		}
	}
	if tc.ID != "" {
		pc.id = tc.ID
	}
	if tc.Function.Name != "" {
		pc.name += tc.Function.Name
	}
	pc.args = append(pc.args, tc.Function.Arguments...)
}

// Calls returns the assembled calls ordered by index.
func (a *toolCallAccumulator) Calls() []shared.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	idxs := make([]int, 0, len(a.calls))
	for i := range a.calls {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	out := make([]shared.ToolCall, 0, len(idxs))
	for _, i := range idxs {
		pc := a.calls[i]
		out = append(out, DecodeArguments(pc.name, pc.id, string(pc.args)))
	}
	return out
}
