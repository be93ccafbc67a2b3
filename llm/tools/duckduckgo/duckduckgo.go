package duckduckgo

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	providershared "research-assistant/llm/providers/shared"
	"research-assistant/llm/providers/transport"
	"research-assistant/llm/tools/shared"
)

const (
	// DefaultBaseURL is the JavaScript-free DuckDuckGo front end.
	DefaultBaseURL = "https://html.duckduckgo.com"

	defaultMaxResults = 5
	maxResultsCap     = 30
	maxBody           = 1 << 20
)

var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
}

// Search queries DuckDuckGo for web pages or news articles.
type Search struct {
	client  *transport.HTTPClient
	baseURL string
	news    bool
}

// NewSearch creates the duckduckgo_search tool
func NewSearch(client *transport.HTTPClient, baseURL string) *Search {
	return newSearch(client, baseURL, false)
}

// NewNews creates the duckduckgo_news tool
func NewNews(client *transport.HTTPClient, baseURL string) *Search {
	return newSearch(client, baseURL, true)
}

func newSearch(client *transport.HTTPClient, baseURL string, news bool) *Search {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Search{client: client, baseURL: strings.TrimRight(baseURL, "/"), news: news}
}

// Name returns the tool name
func (s *Search) Name() string {
	if s.news {
		return "duckduckgo_news"
	}
	return "duckduckgo_search"
}

// Description returns the tool description
func (s *Search) Description() string {
	if s.news {
		return "Search DuckDuckGo News for recent articles about a topic. Returns titles, URLs and snippets."
	}
	return "Search the web with DuckDuckGo. Returns titles, URLs and snippets of the top results."
}

// Schema returns the JSON schema for input validation
func (s *Search) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum number of results to return (default: %d)", defaultMaxResults),
			},
		},
		"required": []string{"query"},
	}
}

// Definition returns the model-facing tool definition
func (s *Search) Definition() *providershared.ToolDef {
	return shared.Definition(s.Name(), s.Description(), s.Schema())
}

// Execute performs the search
func (s *Search) Execute(ctx context.Context, input *shared.ToolInput) (*shared.ToolResult, error) {
	query, ok := shared.StringArg(input.Data, "query")
	if !ok {
		return shared.Failure("query field is required and must be a string"), nil
	}

	maxResults := shared.IntArg(input.Data, "max_results", defaultMaxResults)
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if maxResults > maxResultsCap {
		maxResults = maxResultsCap
	}

	params := url.Values{"q": {query}}
	if s.news {
		params.Set("iar", "news")
	}
	body, err := s.client.Get(ctx, s.baseURL+"/html/?"+params.Encode(), browserHeaders, maxBody)
	if err != nil {
		return shared.Failure("search failed: %v", err), nil
	}

	results, err := ParseResults(string(body), maxResults)
	if err != nil {
		return shared.Failure("search failed: %v", err), nil
	}

	items := make([]any, len(results))
	for i, r := range results {
		items[i] = map[string]any{"title": r.Title, "url": r.URL, "snippet": r.Snippet}
	}
	return &shared.ToolResult{
		Success: true,
		Data: map[string]any{
			"query":   query,
			"results": items,
		},
		Content: FormatResults(query, results),
		Stats:   shared.ToolStats{Requests: 1},
	}, nil
}

// FormatResults renders results as markdown.
func FormatResults(query string, results []Result) string {
	if len(results) == 0 {
		return "No results found for: " + query
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Search Results for: %s\n\n", query)
	fmt.Fprintf(&sb, "Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "## %d. %s\n", i+1, r.Title)
		fmt.Fprintf(&sb, "**URL:** %s\n", r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&sb, "\n%s\n", r.Snippet)
		}
		sb.WriteString("\n---\n\n")
	}
	return sb.String()
}
