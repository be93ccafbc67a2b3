package resend

import (
	"context"
	"fmt"
	"strings"

	providershared "research-assistant/llm/providers/shared"
	"research-assistant/llm/providers/transport"
	"research-assistant/llm/tools/shared"
)

// DefaultBaseURL is the Resend REST API.
const DefaultBaseURL = "https://api.resend.com"

// Config holds the sender identity and credentials.
type Config struct {
	APIKey string
	From   string
	// DefaultTo receives mail when the caller names no recipient.
	DefaultTo string
	BaseURL   string
}

// SendEmail is the resend_send_email tool. Sending is not idempotent; the
// client it is given must not retry POST requests.
type SendEmail struct {
	client *transport.HTTPClient
	cfg    Config
}

// NewSendEmail creates the resend_send_email tool
func NewSendEmail(client *transport.HTTPClient, cfg Config) *SendEmail {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SendEmail{client: client, cfg: cfg}
}

// Name returns the tool name
func (s *SendEmail) Name() string { return "resend_send_email" }

// Description returns the tool description
func (s *SendEmail) Description() string {
	return "Send an email through Resend. The body may contain HTML."
}

// Schema returns the JSON schema for input validation
func (s *SendEmail) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient address; several may be comma separated. Omit to use the default recipient.",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject line",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Email body, HTML allowed",
			},
		},
		"required": []string{"subject", "body"},
	}
}

// Definition returns the model-facing tool definition
func (s *SendEmail) Definition() *providershared.ToolDef {
	return shared.Definition(s.Name(), s.Description(), s.Schema())
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// Recipients resolves the to argument against the default recipient.
func (s *SendEmail) Recipients(data map[string]any) []string {
	if to := shared.StringSliceArg(data, "to"); len(to) > 0 {
		return to
	}
	if s.cfg.DefaultTo == "" {
		return nil
	}
	return []string{s.cfg.DefaultTo}
}

// Execute sends the email
func (s *SendEmail) Execute(ctx context.Context, input *shared.ToolInput) (*shared.ToolResult, error) {
	if s.cfg.APIKey == "" {
		return shared.Failure("%v: RESEND_API_KEY is not set", shared.ErrCredentialMissing), nil
	}
	if s.cfg.From == "" {
		return shared.Failure("%v: EMAIL_FROM is not set", shared.ErrCredentialMissing), nil
	}

	subject, ok := shared.StringArg(input.Data, "subject")
	if !ok {
		return shared.Failure("subject field is required and must be a string"), nil
	}
	body, ok := shared.StringArg(input.Data, "body")
	if !ok {
		return shared.Failure("body field is required and must be a string"), nil
	}
	to := s.Recipients(input.Data)
	if len(to) == 0 {
		return shared.Failure("no recipient given and EMAIL_TO is not set"), nil
	}

	var resp sendResponse
	err := s.client.PostJSON(ctx, s.cfg.BaseURL+"/emails", map[string]string{
		"Authorization": "Bearer " + s.cfg.APIKey,
	}, sendRequest{From: s.cfg.From, To: to, Subject: subject, HTML: body}, &resp)
	if err != nil {
		return shared.Failure("failed to send email: %v", err), nil
	}

	return &shared.ToolResult{
		Success: true,
		Data: map[string]any{
			"id":      resp.ID,
			"to":      to,
			"subject": subject,
		},
		Content: fmt.Sprintf("Email sent to %s (id %s)", strings.Join(to, ", "), resp.ID),
		Stats:   shared.ToolStats{Requests: 1},
	}, nil
}
