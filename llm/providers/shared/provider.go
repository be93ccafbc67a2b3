package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// NormalizeError normalizes different error types to ProviderError
func NormalizeError(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Code: ErrTimeout, Message: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProviderError{Code: ErrTimeout, Message: err.Error()}
	}

	return &ProviderError{
		Code:    ErrUnknown,
		Message: err.Error(),
	}
}

// ErrorFromStatus maps an HTTP status of a provider response to a ProviderError.
func ErrorFromStatus(status int, message string) *ProviderError {
	code := ErrUnknown
	switch {
	case status == http.StatusTooManyRequests:
		code = ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = ErrAuth
	case status == http.StatusNotFound:
		code = ErrModelNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = ErrTimeout
	case status == http.StatusServiceUnavailable || status == 529:
		code = ErrOverloaded
	case status >= 500:
		code = ErrUnavailable
	case status == http.StatusBadRequest:
		code = ErrInvalidRequest
		if strings.Contains(strings.ToLower(message), "context length") || strings.Contains(message, "maximum context") {
			code = ErrContextLength
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &ProviderError{Code: code, Message: message, HTTPStatus: status}
}

// ValidateCompletionRequest validates a completion request
func ValidateCompletionRequest(req *CompletionRequest) error {
	if req == nil {
		return &ProviderError{
			Code:    ErrInvalidRequest,
			Message: "request cannot be nil",
		}
	}

	if len(req.Messages) == 0 {
		return &ProviderError{
			Code:    ErrInvalidRequest,
			Message: "messages cannot be empty",
		}
	}

	for i, msg := range req.Messages {
		if msg.Role == "" {
			return &ProviderError{
				Code:    ErrInvalidRequest,
				Message: fmt.Sprintf("message %d: role cannot be empty", i),
			}
		}
		if msg.Role != RoleSystem && msg.Role != RoleUser && msg.Role != RoleAssistant && msg.Role != RoleTool {
			return &ProviderError{
				Code:    ErrInvalidRequest,
				Message: fmt.Sprintf("message %d: invalid role '%s'", i, msg.Role),
			}
		}
		if msg.Role == RoleTool && msg.ToolInvocation == nil {
			return &ProviderError{
				Code:    ErrInvalidRequest,
				Message: fmt.Sprintf("message %d: tool message without invocation", i),
			}
		}
	}

	if req.Options.Model == "" {
		return &ProviderError{
			Code:    ErrInvalidRequest,
			Message: "model cannot be empty",
		}
	}

	return nil
}
