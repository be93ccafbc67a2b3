package conversations

// Capabilities lists what the team can help with.
var Capabilities = []string{
	"Web searches",
	"Website content extraction",
	"YouTube video analysis",
	"Email drafting & sending",
	"GitHub repo exploration",
	"Hacker News trend tracking",
	"General Q&A and synthesis",
}

// Example is a sample query and the specialist it exercises.
type Example struct {
	Query string `json:"query"`
	Uses  string `json:"uses"`
}

// Examples are shown by the interaction shells.
var Examples = []Example{
	{"What are the latest AI breakthroughs?", "Web Search"},
	{"Crawl http://example.com and summarize the homepage.", "Web Crawler"},
	{"Summarize the YouTube video at https://youtu.be/dQw4w9WgXcQ", "YouTube Analyst"},
	{"Draft an email to someone@example.com about our project.", "Email Assistant"},
	{"Find trending Python repositories on GitHub this week.", "GitHub Researcher"},
	{"What's trending on Hacker News today?", "HackerNews Monitor"},
	{"What was my first question to you?", "the team's memory"},
}

// About explains how a query is answered.
const About = `**How this works**:
- The *coordinator* agent analyzes your query and delegates tasks to the specialist agents.
- Each specialist does its part (searching, crawling, analyzing, etc.) and returns results to the coordinator.
- The coordinator then synthesizes everything into a final answer which you see here.
- The team has memory within a session, so you can ask follow-up questions that reference earlier answers.`

// MemoryNote describes the session memory next to the reset control.
const MemoryNote = "This team remembers the conversation in this session. Use the reset button to clear memory."
