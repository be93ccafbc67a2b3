// Package specialists defines the research assistant's specialist agents.
package specialists

import (
	"fmt"

	"research-assistant/internal/config"
	"research-assistant/llm/agents"
)

// Settings carries the configuration the descriptors depend on.
type Settings struct {
	// EmailTo is the default recipient of EmailAssistant.
	EmailTo            string
	HistoryRuns        int
	GeneralHistoryRuns int
}

// FromConfig extracts Settings from the application configuration.
func FromConfig(cfg *config.Config) Settings {
	return Settings{
		EmailTo:            cfg.Email.To,
		HistoryRuns:        cfg.Team.MemberHistoryRuns,
		GeneralHistoryRuns: cfg.Team.GeneralHistoryRuns,
	}
}

// Tool names bound to each specialist.
var (
	SearchTools     = []string{"duckduckgo_search", "duckduckgo_news"}
	CrawlerTools    = []string{"web_crawler"}
	YouTubeTools    = []string{"youtube_video_data", "youtube_video_captions", "youtube_video_timestamps"}
	EmailTools      = []string{"resend_send_email"}
	GitHubTools     = []string{"github_search_repositories", "github_get_repository", "github_list_pull_requests", "github_list_issues"}
	HackerNewsTools = []string{"hackernews_top_stories", "hackernews_user_details"}
)

// Descriptors returns the seven specialists in routing-table order.
func Descriptors(s Settings) []agents.Descriptor {
	if s.HistoryRuns <= 0 {
		s.HistoryRuns = 3
	}
	if s.GeneralHistoryRuns <= 0 {
		s.GeneralHistoryRuns = 5
	}
	emailTo := s.EmailTo
	if emailTo == "" {
		emailTo = "not configured"
	}

	return []agents.Descriptor{
		{
			Name:        agents.InternetSearcher,
			Description: "Expert at finding information online.",
			Instructions: []string{
				"Use duckduckgo_search for web queries.",
				"Cite sources with URLs in responses.",
				"Focus on recent, reliable information.",
			},
			Tools:       SearchTools,
			HistoryRuns: s.HistoryRuns,
			AddDatetime: true,
			Markdown:    true,
		},
		{
			Name:        agents.WebCrawler,
			Description: "Extracts content from specific websites.",
			Instructions: []string{
				"Use web_crawler to extract content from provided URLs.",
				"Summarize key points and include the source URL.",
			},
			Tools:       CrawlerTools,
			HistoryRuns: s.HistoryRuns,
			Markdown:    true,
		},
		{
			Name:        agents.YouTubeAnalyst,
			Description: "Analyzes YouTube videos.",
			Instructions: []string{
				"Extract captions and metadata for provided YouTube URLs.",
				"Summarize key points and include the video URL.",
			},
			Tools:       YouTubeTools,
			HistoryRuns: s.HistoryRuns,
			Markdown:    true,
		},
		{
			Name:        agents.EmailAssistant,
			Description: "Sends emails professionally.",
			Instructions: []string{
				"Send professional emails based on context or user request.",
				fmt.Sprintf("Default recipient is %s, but use the recipient specified in the query if provided.", emailTo),
				"Include any relevant links or references in the email.",
				"Maintain a courteous and professional tone.",
			},
			Tools:       EmailTools,
			HistoryRuns: s.HistoryRuns,
			Markdown:    true,
		},
		{
			Name:        agents.GitHubResearcher,
			Description: "Explores GitHub repositories and issues.",
			Instructions: []string{
				"Search repositories or list pull requests based on the user query.",
				"Provide repository links and summarize findings.",
			},
			Tools:       GitHubTools,
			HistoryRuns: s.HistoryRuns,
			AddDatetime: true,
			Markdown:    true,
		},
		{
			Name:        agents.HackerNewsMonitor,
			Description: "Tracks Hacker News trends.",
			Instructions: []string{
				"Fetch top stories using hackernews_top_stories.",
				"Summarize the story discussions and include URLs.",
			},
			Tools:       HackerNewsTools,
			HistoryRuns: s.HistoryRuns,
			AddDatetime: true,
			Markdown:    true,
		},
		{
			Name:        agents.GeneralAssistant,
			Description: "Handles general queries and synthesizes info from specialists.",
			Instructions: []string{
				"Answer general questions or combine inputs from specialist agents.",
				"If specialists provide info, synthesize it into a clear answer.",
				"If a query doesn't fit other specialists, attempt to answer directly.",
				"Maintain a professional and clear tone.",
				"Make the response beautifully formatted as well.",
			},
			HistoryRuns: s.GeneralHistoryRuns,
			Markdown:    true,
		},
	}
}

// Lookup returns the descriptor called name.
func Lookup(descs []agents.Descriptor, name string) (agents.Descriptor, bool) {
	for _, d := range descs {
		if d.Name == name {
			return d.Clone(), true
		}
	}
	return agents.Descriptor{}, false
}
