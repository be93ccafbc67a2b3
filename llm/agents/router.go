package agents

import (
	"regexp"
	"strings"
)

// Member names shared by the router and the specialist catalog.
const (
	InternetSearcher  = "InternetSearcher"
	WebCrawler        = "WebCrawler"
	YouTubeAnalyst    = "YouTubeAnalyst"
	EmailAssistant    = "EmailAssistant"
	GitHubResearcher  = "GitHubResearcher"
	HackerNewsMonitor = "HackerNewsMonitor"
	GeneralAssistant  = "GeneralAssistant"
)

// Rule sends queries it matches to Member.
type Rule struct {
	Name   string
	Member string
	Match  func(query string) bool
}

// Router evaluates rules in order and returns every matched member once.
type Router struct {
	rules    []Rule
	fallback string
}

// NewRouter creates a router. fallback handles queries no rule matches.
func NewRouter(fallback string, rules ...Rule) *Router {
	return &Router{rules: rules, fallback: fallback}
}

// Route returns the members for query in rule order, or the fallback.
func (r *Router) Route(query string) []string {
	seen := make(map[string]bool)
	var members []string
	for _, rule := range r.rules {
		if seen[rule.Member] || !rule.Match(query) {
			continue
		}
		seen[rule.Member] = true
		members = append(members, rule.Member)
	}
	if len(members) == 0 && r.fallback != "" {
		members = []string{r.fallback}
	}
	return members
}

var (
	urlPattern     = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+|\bwww\.[^\s<>"']+`)
	youtubePattern = regexp.MustCompile(`(?i)\b(youtube\.com/|youtu\.be/)`)
	githubPattern  = regexp.MustCompile(`(?i)\bgithub\b|\bpull requests?\b|\brepositor(y|ies)\b|\brepos?\b`)
	emailPattern   = regexp.MustCompile(`(?i)\b(e-?mail|send (a |an )?(message|note) to)\b|[\w.+-]+@[\w-]+\.[\w.]+`)
	hnPattern      = regexp.MustCompile(`(?i)\bhacker ?news\b|\bhn\b`)
	searchPattern  = regexp.MustCompile(`(?i)\b(search|look up|find|latest|recent|today|current)\b`)
)

// URLs returns the links mentioned in query.
func URLs(query string) []string {
	return urlPattern.FindAllString(query, -1)
}

func nonYouTubeURL(query string) bool {
	for _, u := range URLs(query) {
		if !youtubePattern.MatchString(u) && !strings.Contains(strings.ToLower(u), "github.com") {
			return true
		}
	}
	return false
}

// DefaultRules is the fixed dispatch table of the research assistant.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "youtube-url", Member: YouTubeAnalyst, Match: youtubePattern.MatchString},
		{Name: "email-intent", Member: EmailAssistant, Match: emailPattern.MatchString},
		{Name: "github", Member: GitHubResearcher, Match: githubPattern.MatchString},
		{Name: "hacker-news", Member: HackerNewsMonitor, Match: hnPattern.MatchString},
		{Name: "website-url", Member: WebCrawler, Match: nonYouTubeURL},
		{Name: "search-intent", Member: InternetSearcher, Match: searchPattern.MatchString},
	}
}

// DefaultRouter routes with DefaultRules and falls back to GeneralAssistant.
func DefaultRouter() *Router {
	return NewRouter(GeneralAssistant, DefaultRules()...)
}
