package hackernews

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	providershared "research-assistant/llm/providers/shared"
	"research-assistant/llm/providers/transport"
	"research-assistant/llm/tools/shared"
)

// DefaultBaseURL is the Hacker News Firebase API.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

const (
	defaultLimit = 10
	maxLimit     = 30
	fetchWorkers = 8
)

// Item is a story as the API returns it.
type Item struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Score       int    `json:"score"`
	Time        int64  `json:"time"`
	Descendants int    `json:"descendants"`
}

// DiscussionURL links to the comment thread.
func (i Item) DiscussionURL() string {
	return fmt.Sprintf("https://news.ycombinator.com/item?id=%d", i.ID)
}

// User is a Hacker News account.
type User struct {
	ID        string `json:"id"`
	Created   int64  `json:"created"`
	Karma     int    `json:"karma"`
	About     string `json:"about"`
	Submitted []int  `json:"submitted"`
}

// Client reads the Hacker News API.
type Client struct {
	http    *transport.HTTPClient
	baseURL string
}

// NewClient creates a Hacker News client.
func NewClient(httpClient *transport.HTTPClient, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// TopStories returns the first limit top stories in ranking order. Items are
// fetched concurrently.
func (c *Client) TopStories(ctx context.Context, limit int) ([]Item, error) {
	var ids []int
	if err := c.http.GetJSON(ctx, c.baseURL+"/topstories.json", nil, &ids); err != nil {
		return nil, err
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	items := make([]Item, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, id := range ids {
		g.Go(func() error {
			return c.http.GetJSON(gctx, fmt.Sprintf("%s/item/%d.json", c.baseURL, id), nil, &items[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch stories: %w", err)
	}
	return items, nil
}

// User fetches an account.
func (c *Client) User(ctx context.Context, username string) (*User, error) {
	var u *User
	if err := c.http.GetJSON(ctx, fmt.Sprintf("%s/user/%s.json", c.baseURL, username), nil, &u); err != nil {
		return nil, err
	}
	// The API answers null for unknown users.
	if u == nil {
		return nil, fmt.Errorf("user %q not found", username)
	}
	return u, nil
}

// TopStoriesTool is hackernews_top_stories.
type TopStoriesTool struct{ client *Client }

// NewTopStoriesTool creates the hackernews_top_stories tool
func NewTopStoriesTool(c *Client) *TopStoriesTool { return &TopStoriesTool{client: c} }

func (t *TopStoriesTool) Name() string { return "hackernews_top_stories" }

func (t *TopStoriesTool) Description() string {
	return "Get the current top stories from Hacker News with their links, scores and comment counts."
}

func (t *TopStoriesTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Number of stories to return (default %d, max %d)", defaultLimit, maxLimit),
			},
		},
	}
}

func (t *TopStoriesTool) Definition() *providershared.ToolDef {
	return shared.Definition(t.Name(), t.Description(), t.Schema())
}

func (t *TopStoriesTool) Execute(ctx context.Context, input *shared.ToolInput) (*shared.ToolResult, error) {
	limit := shared.IntArg(input.Data, "limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	stories, err := t.client.TopStories(ctx, limit)
	if err != nil {
		return shared.Failure("failed to get top stories: %v", err), nil
	}

	var sb strings.Builder
	for i, s := range stories {
		link := s.URL
		if link == "" {
			link = s.DiscussionURL()
		}
		fmt.Fprintf(&sb, "%d. [%s](%s)\n   %d points by %s, %d comments: %s\n", i+1, s.Title, link, s.Score, s.By, s.Descendants, s.DiscussionURL())
	}
	return &shared.ToolResult{
		Success: true,
		Data:    map[string]any{"count": len(stories)},
		Content: sb.String(),
		Stats:   shared.ToolStats{Requests: len(stories) + 1},
	}, nil
}

// UserTool is hackernews_user_details.
type UserTool struct{ client *Client }

// NewUserTool creates the hackernews_user_details tool
func NewUserTool(c *Client) *UserTool { return &UserTool{client: c} }

func (t *UserTool) Name() string { return "hackernews_user_details" }

func (t *UserTool) Description() string {
	return "Get details of a Hacker News user: karma, creation date, about text."
}

func (t *UserTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"username": map[string]any{
				"type":        "string",
				"description": "The Hacker News username",
			},
		},
		"required": []string{"username"},
	}
}

func (t *UserTool) Definition() *providershared.ToolDef {
	return shared.Definition(t.Name(), t.Description(), t.Schema())
}

func (t *UserTool) Execute(ctx context.Context, input *shared.ToolInput) (*shared.ToolResult, error) {
	username, ok := shared.StringArg(input.Data, "username")
	if !ok {
		return shared.Failure("username field is required and must be a string"), nil
	}
	u, err := t.client.User(ctx, username)
	if err != nil {
		return shared.Failure("failed to get user: %v", err), nil
	}

	created := time.Unix(u.Created, 0).UTC().Format("2006-01-02")
	content := fmt.Sprintf("User: %s\nKarma: %d\nCreated: %s\nSubmissions: %d\nProfile: https://news.ycombinator.com/user?id=%s\n",
		u.ID, u.Karma, created, len(u.Submitted), u.ID)
	if u.About != "" {
		content += "About: " + u.About + "\n"
	}
	return &shared.ToolResult{
		Success: true,
		Data:    map[string]any{"id": u.ID, "karma": u.Karma, "created": created},
		Content: content,
		Stats:   shared.ToolStats{Requests: 1},
	}, nil
}
