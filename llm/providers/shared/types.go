package shared

import (
	"context"
	"time"
)

// Role defines the role of a message in a conversation
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a chat message for LLM providers
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	// Optional tool call/invocation metadata for cross-provider parity.
	ToolCalls      []ToolCall      `json:"tool_calls,omitempty"`
	ToolInvocation *ToolInvocation `json:"tool_invocation,omitempty"`
}

// ToolDef defines a tool/function that can be called by the LLM
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	JSONSchema  map[string]any `json:"json_schema,omitempty"`
}

// ToolCall represents a tool call made by the LLM
type ToolCall struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
	// Normalized JSON arguments.
	Arguments map[string]any `json:"arguments,omitempty"`
	// RawArguments keeps the provider's argument text when it was not valid JSON.
	RawArguments string `json:"raw_arguments,omitempty"`
}

// ToolInvocation represents the result of a tool call
type ToolInvocation struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	RawText string `json:"raw_text,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// CompletionOptions defines parameters for LLM completion requests
type CompletionOptions struct {
	Model         string
	MaxTokens     int
	Temperature   float32
	TopP          float32
	Stop          []string
	Tools         []ToolDef
	ParallelTools bool
}

// CompletionRequest represents a request to complete
type CompletionRequest struct {
	Messages []Message
	Options  CompletionOptions
	// Optional system prompt when a provider needs top-level system.
	System string
}

// TokenUsage tracks token consumption for billing and monitoring
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates another usage record.
func (u *TokenUsage) Add(o TokenUsage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// StreamChunk represents a chunk of streaming response. Tool calls are only
// reported once fully assembled, on the chunk with Done set.
type StreamChunk struct {
	DeltaText string
	ToolCalls []ToolCall
	Done      bool
	Usage     *TokenUsage
	// Err is set on the final chunk when the stream failed mid-way.
	Err error
}

// CompletionResponse represents the response from an LLM completion
type CompletionResponse struct {
	Content    string
	Messages   []Message // full assistant message + tool blocks, if any
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string // normalized stop reason (e.g., "stop", "length", "tool")
}

// ErrorCode defines normalized error codes across providers
type ErrorCode string

const (
	ErrRateLimited        ErrorCode = "rate_limited"
	ErrOverloaded         ErrorCode = "overloaded"
	ErrTimeout            ErrorCode = "timeout"
	ErrAuth               ErrorCode = "auth"
	ErrInvalidRequest     ErrorCode = "invalid_request"
	ErrModelNotFound      ErrorCode = "model_not_found"
	ErrContextLength      ErrorCode = "context_length_exceeded"
	ErrUnavailable        ErrorCode = "service_unavailable"
	ErrUnknown            ErrorCode = "unknown"
	ErrUnsupportedFeature ErrorCode = "unsupported_feature"
)

// ProviderError represents a normalized error from any provider
type ProviderError struct {
	Code    ErrorCode
	Message string
	// Optional: original HTTP status/code and provider payload
	HTTPStatus int
	Raw        any
}

func (e *ProviderError) Error() string { return e.Message }

// Retryable reports whether the request may succeed when sent again.
func (e *ProviderError) Retryable() bool {
	switch e.Code {
	case ErrRateLimited, ErrOverloaded, ErrTimeout, ErrUnavailable:
		return true
	}
	return false
}

// ModelCapabilities defines what features a model supports
type ModelCapabilities struct {
	Streaming         bool
	Tools             bool
	ParallelToolCalls bool
	SystemMessage     bool
	MaxContextTokens  int
}

// LLMProvider defines the unified interface for LLM providers
type LLMProvider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	StreamComplete(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, func(), error)
	GetModelCapabilities(model string) ModelCapabilities
	Name() string
}

// ProviderType defines the type of LLM provider
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
)

// ClientOptions defines HTTP client configuration
type ClientOptions struct {
	BaseURL      string
	APIKey       string
	Headers      map[string]string
	Timeout      time.Duration
	RetryMax     int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	MaxIdleConns int
	IdleConnTTL  time.Duration
	// RequestsPerSecond paces requests per host; zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	// RetryPost allows POST requests to be retried. Only safe for requests
	// that have no side effects beyond the response.
	RetryPost bool
}
