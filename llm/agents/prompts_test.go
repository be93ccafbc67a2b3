package agents

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"research-assistant/llm/memory"
)

func TestPromptBuilderSections(t *testing.T) {
	fixed := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	desc := Descriptor{
		Name:           "ResearchAssistantTeam",
		Description:    "Coordinates a team.",
		Instructions:   []string{"Delegate tasks based on query type:", "- Web searches -> InternetSearcher", "Cite sources."},
		AddDatetime:    true,
		Markdown:       true,
		ExpectedOutput: "A thorough answer.",
	}
	prompt := NewPromptBuilder(desc, func() time.Time { return fixed }).Build(
		[]memory.Record{{ID: "m1", Content: "User prefers Go examples"}},
		[]string{"delegate_task_to_member"},
	)

	assert.True(t, strings.HasPrefix(prompt, "Coordinates a team."))
	assert.Contains(t, prompt, "Your name is ResearchAssistantTeam.")
	assert.Contains(t, prompt, "- Delegate tasks based on query type:\n  - Web searches -> InternetSearcher\n- Cite sources.")
	assert.Contains(t, prompt, "- delegate_task_to_member")
	assert.Contains(t, prompt, "<expected_output>\nA thorough answer.\n</expected_output>")
	assert.Contains(t, prompt, "2025-03-04 10:30:00 UTC")
	assert.Contains(t, prompt, "Use markdown")
	assert.Contains(t, prompt, "- [m1] User prefers Go examples")

	// Instruction order is kept.
	assert.Less(t, strings.Index(prompt, "Delegate tasks"), strings.Index(prompt, "Cite sources."))
}

func TestPromptBuilderOmitsEmptySections(t *testing.T) {
	prompt := NewPromptBuilder(Descriptor{Name: "WebCrawler"}, nil).Build(nil, nil)
	assert.Equal(t, "Your name is WebCrawler.", prompt)
}

func TestBuildTask(t *testing.T) {
	assert.Equal(t, "task", BuildTask("task", nil))
	assert.Equal(t, "task\n\nctx one", BuildTask("task", []string{"", "ctx one"}))
}

func TestFormatCall(t *testing.T) {
	assert.Equal(t, "duckduckgo_search(max_results=5, query=go)", FormatCall("duckduckgo_search", map[string]any{"query": "go", "max_results": 5}))
	assert.Equal(t, "hackernews_top_stories()", FormatCall("hackernews_top_stories", nil))
	assert.Equal(t, "web_crawler(url=x) completed in 0.42s.", CompletedText("web_crawler", map[string]any{"url": "x"}, 420*time.Millisecond))
}

func TestRouter(t *testing.T) {
	r := DefaultRouter()
	cases := map[string][]string{
		"Summarize https://www.youtube.com/watch?v=dQw4w9WgXcQ":           {YouTubeAnalyst},
		"Send an email to bob@example.com about the launch":                {EmailAssistant},
		"Find popular Go repositories on GitHub":                            {GitHubResearcher, InternetSearcher},
		"What is trending on Hacker News?":                                  {HackerNewsMonitor},
		"Summarize https://go.dev/blog":                                     {WebCrawler},
		"Search for the latest Go release notes":                            {InternetSearcher},
		"Explain the difference between a mutex and a channel":              {GeneralAssistant},
		"Summarize https://youtu.be/dQw4w9WgXcQ and email it to a@b.co":     {YouTubeAnalyst, EmailAssistant},
	}
	for query, want := range cases {
		assert.Equal(t, want, r.Route(query), query)
	}
}

func TestDescriptorClone(t *testing.T) {
	d := Descriptor{Name: "x", Instructions: []string{"a"}, Tools: []string{"t"}}
	c := d.Clone()
	c.Instructions[0] = "b"
	c.Tools[0] = "u"
	assert.Equal(t, "a", d.Instructions[0])
	assert.Equal(t, "t", d.Tools[0])
}
