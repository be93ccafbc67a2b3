package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	providershared "research-assistant/llm/providers/shared"
	"research-assistant/llm/tools/shared"
)

// Fetcher retrieves a page body and its content type.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (body string, contentType string, err error)
}

// Crawler is the web_crawler tool.
type Crawler struct {
	fetcher Fetcher
	// maxLength caps the returned characters; 0 means unlimited.
	maxLength int
}

// New creates a crawler over fetcher.
func New(fetcher Fetcher, maxLength int) *Crawler {
	return &Crawler{fetcher: fetcher, maxLength: maxLength}
}

// Name returns the tool name
func (c *Crawler) Name() string { return "web_crawler" }

// Description returns the tool description
func (c *Crawler) Description() string {
	return "Crawl a web page and return its main content as markdown. Use this to extract the content of a specific URL."
}

// Schema returns the JSON schema for input validation
func (c *Crawler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to crawl",
			},
			"max_length": map[string]any{
				"type":        "integer",
				"description": "Maximum content length in characters; omit for the configured default",
			},
		},
		"required": []string{"url"},
	}
}

// Definition returns the model-facing tool definition
func (c *Crawler) Definition() *providershared.ToolDef {
	return shared.Definition(c.Name(), c.Description(), c.Schema())
}

// Execute crawls the page
func (c *Crawler) Execute(ctx context.Context, input *shared.ToolInput) (*shared.ToolResult, error) {
	raw, ok := shared.StringArg(input.Data, "url")
	if !ok {
		return shared.Failure("url field is required and must be a string"), nil
	}
	pageURL, err := normalizeURL(raw)
	if err != nil {
		return shared.Failure("invalid url %q: %v", raw, err), nil
	}

	maxLength := shared.IntArg(input.Data, "max_length", c.maxLength)

	body, contentType, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return shared.Failure("failed to crawl %s: %v", pageURL, err), nil
	}

	var content string
	if strings.Contains(contentType, "text/plain") || strings.Contains(contentType, "text/markdown") {
		content = body
	} else {
		content, err = HTMLToMarkdown(body)
		if err != nil {
			return shared.Failure("failed to convert %s to markdown: %v", pageURL, err), nil
		}
	}
	content = shared.Truncate(content, maxLength)

	return &shared.ToolResult{
		Success: true,
		Data: map[string]any{
			"url":    pageURL,
			"length": len(content),
		},
		Content: fmt.Sprintf("Source: %s\n\n%s", pageURL, content),
		Stats:   shared.ToolStats{Requests: 1},
	}, nil
}

func normalizeURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	return u.String(), nil
}
