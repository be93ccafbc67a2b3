package github

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"research-assistant/llm/providers/transport"
)

// DefaultBaseURL is the GitHub REST API.
const DefaultBaseURL = "https://api.github.com"

// Repository is the subset of repository fields the tools report.
type Repository struct {
	FullName        string    `json:"full_name"`
	Description     string    `json:"description"`
	HTMLURL         string    `json:"html_url"`
	Language        string    `json:"language"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	OpenIssuesCount int       `json:"open_issues_count"`
	DefaultBranch   string    `json:"default_branch"`
	Topics          []string  `json:"topics"`
	Archived        bool      `json:"archived"`
	UpdatedAt       time.Time `json:"updated_at"`
	License         *struct {
		Name string `json:"name"`
	} `json:"license"`
}

// Issue covers issues and pull requests, which share a shape.
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	Comments  int       `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request,omitempty"`
	Draft bool `json:"draft"`
}

// Client talks to the GitHub REST API. Requests are anonymous when no
// token is configured.
type Client struct {
	http    *transport.HTTPClient
	baseURL string
	token   string
}

// NewClient creates a GitHub client.
func NewClient(httpClient *transport.HTTPClient, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

func (c *Client) headers() map[string]string {
	h := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if c.token != "" {
		h["Authorization"] = "Bearer " + c.token
	}
	return h
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.http.GetJSON(ctx, u, c.headers(), out)
}

// SearchRepositories runs a repository search.
func (c *Client) SearchRepositories(ctx context.Context, query, sort, order string, perPage int) (int, []Repository, error) {
	params := url.Values{"q": {query}, "per_page": {strconv.Itoa(perPage)}}
	if sort != "" {
		params.Set("sort", sort)
	}
	if order != "" {
		params.Set("order", order)
	}
	var resp struct {
		TotalCount int          `json:"total_count"`
		Items      []Repository `json:"items"`
	}
	if err := c.get(ctx, "/search/repositories", params, &resp); err != nil {
		return 0, nil, err
	}
	return resp.TotalCount, resp.Items, nil
}

// Repository fetches one repository.
func (c *Client) Repository(ctx context.Context, fullName string) (*Repository, error) {
	var repo Repository
	if err := c.get(ctx, "/repos/"+fullName, nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// PullRequests lists pull requests of a repository.
func (c *Client) PullRequests(ctx context.Context, fullName, state string, perPage int) ([]Issue, error) {
	var prs []Issue
	params := url.Values{"state": {state}, "per_page": {strconv.Itoa(perPage)}}
	if err := c.get(ctx, "/repos/"+fullName+"/pulls", params, &prs); err != nil {
		return nil, err
	}
	return prs, nil
}

// Issues lists issues of a repository, leaving out pull requests.
func (c *Client) Issues(ctx context.Context, fullName, state string, perPage int) ([]Issue, error) {
	var all []Issue
	params := url.Values{"state": {state}, "per_page": {strconv.Itoa(perPage)}}
	if err := c.get(ctx, "/repos/"+fullName+"/issues", params, &all); err != nil {
		return nil, err
	}
	issues := all[:0]
	for _, is := range all {
		if is.PullRequest == nil {
			issues = append(issues, is)
		}
	}
	return issues, nil
}

// ParseRepo accepts "owner/repo" or a github.com URL.
func ParseRepo(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "github.com") {
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid repository URL: %w", err)
		}
		raw = u.Path
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("repository must look like owner/repo, got %q", raw)
	}
	return parts[0] + "/" + strings.TrimSuffix(parts[1], ".git"), nil
}
