package team

import (
	"fmt"
	"strings"

	"research-assistant/llm/agents"
)

// Name is the coordinator's agent name; team runs are recorded under it.
const Name = "ResearchAssistantTeam"

const (
	description    = "Coordinates a team of specialist agents to handle research tasks."
	expectedOutput = "The user's query has been thoroughly answered with information from all relevant specialists."
)

var instructions = []string{
	"Analyze the user query and decide which specialist(s) should handle it.",
	"Delegate tasks based on query type:",
	"- Web searches -> InternetSearcher",
	"- Website content -> WebCrawler",
	"- YouTube videos -> YouTubeAnalyst",
	"- Emails -> EmailAssistant",
	"- GitHub queries -> GitHubResearcher",
	"- Hacker News -> HackerNewsMonitor",
	"- General or multi-step queries -> GeneralAssistant",
	"Gather all agents' findings and synthesize a coherent answer.",
	"Cite sources for any facts and maintain clarity in the final answer.",
	"Always check the conversation history (memory) for context or follow-up references.",
	"If the user asks something that was asked before, utilize remembered information instead of starting fresh.",
	"Continue delegating and researching until the query is fully answered.",
	"Avoid mentioning the function calls in the final response and make the final response beautifully formatted as well.",
}

// coordinatorDescriptor describes the coordinator with its member roster.
func coordinatorDescriptor(members []agents.Descriptor, historyRuns int) agents.Descriptor {
	var b strings.Builder
	b.WriteString("<team_members>\n")
	for _, m := range members {
		fmt.Fprintf(&b, "- %s: %s\n", m.Name, m.Description)
	}
	b.WriteString("</team_members>")

	return agents.Descriptor{
		Name:              Name,
		Description:       description,
		Instructions:      append([]string(nil), instructions...),
		HistoryRuns:       historyRuns,
		AddDatetime:       true,
		Markdown:          true,
		ExpectedOutput:    expectedOutput,
		AdditionalContext: b.String(),
	}
}

// interactionsBlock renders what members produced earlier in the run.
func interactionsBlock(results []MemberResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<member_interactions>\n")
	for _, r := range results {
		fmt.Fprintf(&b, "Member: %s\nTask: %s\nResponse: %s\n\n", r.Member, r.Task, r.Text())
	}
	b.WriteString("</member_interactions>")
	return b.String()
}

// responsesBlock hands routed member answers to the coordinator in rules mode.
func responsesBlock(results []MemberResult) string {
	var b strings.Builder
	b.WriteString("The specialists below already worked on this query. Synthesize their findings into the final answer.\n\n")
	b.WriteString("<member_responses>\n")
	for _, r := range results {
		fmt.Fprintf(&b, "## %s\n%s\n\n", r.Member, r.Text())
	}
	b.WriteString("</member_responses>")
	return b.String()
}
