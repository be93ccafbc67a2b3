package github

import (
	"context"
	"fmt"
	"strings"

	providershared "research-assistant/llm/providers/shared"
	"research-assistant/llm/tools/shared"
)

const (
	defaultPerPage = 10
	maxPerPage     = 50
)

// Tool is one GitHub capability.
type Tool struct {
	name        string
	description string
	schema      map[string]any
	run         func(ctx context.Context, data map[string]any) (*shared.ToolResult, error)
}

func (t *Tool) Name() string           { return t.name }
func (t *Tool) Description() string    { return t.description }
func (t *Tool) Schema() map[string]any { return t.schema }

func (t *Tool) Definition() *providershared.ToolDef {
	return shared.Definition(t.name, t.description, t.schema)
}

func (t *Tool) Execute(ctx context.Context, input *shared.ToolInput) (*shared.ToolResult, error) {
	return t.run(ctx, input.Data)
}

// Tools returns every GitHub tool bound to c.
func Tools(c *Client) []*Tool {
	return []*Tool{
		searchRepositories(c),
		getRepository(c),
		listPullRequests(c),
		listIssues(c),
	}
}

func perPage(data map[string]any) int {
	n := shared.IntArg(data, "per_page", defaultPerPage)
	if n <= 0 {
		return defaultPerPage
	}
	if n > maxPerPage {
		return maxPerPage
	}
	return n
}

func repoArg(data map[string]any) (string, *shared.ToolResult) {
	raw, ok := shared.StringArg(data, "repo")
	if !ok {
		return "", shared.Failure("repo field is required and must look like owner/repo")
	}
	repo, err := ParseRepo(raw)
	if err != nil {
		return "", shared.FailureFromError(err)
	}
	return repo, nil
}

func stateArg(data map[string]any) string {
	switch s, _ := shared.StringArg(data, "state"); s {
	case "open", "closed", "all":
		return s
	default:
		return "open"
	}
}

var repoProperty = map[string]any{
	"type":        "string",
	"description": "Repository as owner/repo or a github.com URL",
}

var listSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"repo":     repoProperty,
		"state":    map[string]any{"type": "string", "enum": []string{"open", "closed", "all"}, "description": "Filter by state (default open)"},
		"per_page": map[string]any{"type": "integer", "description": "Number of results (default 10, max 50)"},
	},
	"required": []string{"repo"},
}

func searchRepositories(c *Client) *Tool {
	return &Tool{
		name:        "github_search_repositories",
		description: "Search GitHub repositories. Supports GitHub search qualifiers such as language:go or stars:>1000.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":    map[string]any{"type": "string", "description": "Search query"},
				"sort":     map[string]any{"type": "string", "enum": []string{"stars", "forks", "updated", "help-wanted-issues"}, "description": "Sort field"},
				"order":    map[string]any{"type": "string", "enum": []string{"asc", "desc"}, "description": "Sort order"},
				"per_page": map[string]any{"type": "integer", "description": "Number of results (default 10, max 50)"},
			},
			"required": []string{"query"},
		},
		run: func(ctx context.Context, data map[string]any) (*shared.ToolResult, error) {
			query, ok := shared.StringArg(data, "query")
			if !ok {
				return shared.Failure("query field is required and must be a string"), nil
			}
			sort, _ := shared.StringArg(data, "sort")
			order, _ := shared.StringArg(data, "order")
			total, repos, err := c.SearchRepositories(ctx, query, sort, order, perPage(data))
			if err != nil {
				return shared.Failure("repository search failed: %v", err), nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Found %d repositories for %q (showing %d):\n\n", total, query, len(repos))
			for i, r := range repos {
				fmt.Fprintf(&sb, "%d. [%s](%s) - %d stars", i+1, r.FullName, r.HTMLURL, r.StargazersCount)
				if r.Language != "" {
					fmt.Fprintf(&sb, ", %s", r.Language)
				}
				if r.Description != "" {
					fmt.Fprintf(&sb, "\n   %s", r.Description)
				}
				sb.WriteString("\n")
			}
			return &shared.ToolResult{
				Success: true,
				Data:    map[string]any{"total_count": total, "returned": len(repos)},
				Content: sb.String(),
				Stats:   shared.ToolStats{Requests: 1},
			}, nil
		},
	}
}

func getRepository(c *Client) *Tool {
	return &Tool{
		name:        "github_get_repository",
		description: "Get details of a GitHub repository: description, stars, forks, open issues, language, license.",
		schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"repo": repoProperty},
			"required":   []string{"repo"},
		},
		run: func(ctx context.Context, data map[string]any) (*shared.ToolResult, error) {
			name, fail := repoArg(data)
			if fail != nil {
				return fail, nil
			}
			r, err := c.Repository(ctx, name)
			if err != nil {
				return shared.Failure("failed to get repository %s: %v", name, err), nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "# %s\n%s\n\n", r.FullName, r.HTMLURL)
			if r.Description != "" {
				fmt.Fprintf(&sb, "%s\n\n", r.Description)
			}
			fmt.Fprintf(&sb, "- Stars: %d\n- Forks: %d\n- Open issues: %d\n", r.StargazersCount, r.ForksCount, r.OpenIssuesCount)
			if r.Language != "" {
				fmt.Fprintf(&sb, "- Language: %s\n", r.Language)
			}
			if r.License != nil {
				fmt.Fprintf(&sb, "- License: %s\n", r.License.Name)
			}
			if len(r.Topics) > 0 {
				fmt.Fprintf(&sb, "- Topics: %s\n", strings.Join(r.Topics, ", "))
			}
			fmt.Fprintf(&sb, "- Default branch: %s\n- Last updated: %s\n", r.DefaultBranch, r.UpdatedAt.Format("2006-01-02"))
			if r.Archived {
				sb.WriteString("- Archived\n")
			}
			return &shared.ToolResult{
				Success: true,
				Data:    map[string]any{"full_name": r.FullName, "url": r.HTMLURL, "stars": r.StargazersCount},
				Content: sb.String(),
				Stats:   shared.ToolStats{Requests: 1},
			}, nil
		},
	}
}

func formatIssues(kind, repo, state string, items []Issue) string {
	if len(items) == 0 {
		return fmt.Sprintf("No %s %s found in %s.", state, kind, repo)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %s %s in %s:\n\n", len(items), state, kind, repo)
	for _, is := range items {
		fmt.Fprintf(&sb, "- #%d [%s](%s) by %s, %s", is.Number, is.Title, is.HTMLURL, is.User.Login, is.CreatedAt.Format("2006-01-02"))
		if is.Draft {
			sb.WriteString(" (draft)")
		}
		if len(is.Labels) > 0 {
			labels := make([]string, len(is.Labels))
			for i, l := range is.Labels {
				labels[i] = l.Name
			}
			fmt.Fprintf(&sb, " [%s]", strings.Join(labels, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func listPullRequests(c *Client) *Tool {
	return &Tool{
		name:        "github_list_pull_requests",
		description: "List pull requests of a GitHub repository.",
		schema:      listSchema,
		run: func(ctx context.Context, data map[string]any) (*shared.ToolResult, error) {
			name, fail := repoArg(data)
			if fail != nil {
				return fail, nil
			}
			state := stateArg(data)
			prs, err := c.PullRequests(ctx, name, state, perPage(data))
			if err != nil {
				return shared.Failure("failed to list pull requests of %s: %v", name, err), nil
			}
			return &shared.ToolResult{
				Success: true,
				Data:    map[string]any{"repo": name, "count": len(prs)},
				Content: formatIssues("pull requests", name, state, prs),
				Stats:   shared.ToolStats{Requests: 1},
			}, nil
		},
	}
}

func listIssues(c *Client) *Tool {
	return &Tool{
		name:        "github_list_issues",
		description: "List issues of a GitHub repository (pull requests excluded).",
		schema:      listSchema,
		run: func(ctx context.Context, data map[string]any) (*shared.ToolResult, error) {
			name, fail := repoArg(data)
			if fail != nil {
				return fail, nil
			}
			state := stateArg(data)
			issues, err := c.Issues(ctx, name, state, perPage(data))
			if err != nil {
				return shared.Failure("failed to list issues of %s: %v", name, err), nil
			}
			return &shared.ToolResult{
				Success: true,
				Data:    map[string]any{"repo": name, "count": len(issues)},
				Content: formatIssues("issues", name, state, issues),
				Stats:   shared.ToolStats{Requests: 1},
			}, nil
		},
	}
}
