// Package stream separates the visible answer text from tool-call markers
// interleaved in a streamed response.
package stream

import (
	"strings"
	"sync"
)

// Kind classifies a fragment.
type Kind int

const (
	Visible Kind = iota
	Marker
)

func (k Kind) String() string {
	if k == Marker {
		return "marker"
	}
	return "visible"
}

// DefaultPrefixes are the reserved tool name prefixes.
var DefaultPrefixes = []string{
	"duckduckgo_",
	"web_crawler",
	"youtube_",
	"resend_",
	"github_",
	"hackernews_",
	"update_user_memory",
	"search_memory",
}

const (
	completedMarker = ") completed in "
	delegateMarker  = "delegate_task_to_member"
)

// Filter classifies stream fragments.
type Filter struct {
	prefixes []string
}

// NewFilter returns a filter over prefixes, or DefaultPrefixes when none
// are given.
func NewFilter(prefixes ...string) *Filter {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	return &Filter{prefixes: append([]string(nil), prefixes...)}
}

// Classify reports whether fragment is answer text or a tool marker.
// Whitespace-only fragments are visible.
func (f *Filter) Classify(fragment string) Kind {
	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		return Visible
	}
	if strings.Contains(trimmed, completedMarker) || strings.Contains(trimmed, delegateMarker) {
		return Marker
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(trimmed, p) {
			return Marker
		}
	}
	return Visible
}

// DisplayBuffer accumulates the visible text of one answer.
type DisplayBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

// Append adds a visible fragment.
func (d *DisplayBuffer) Append(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.b.WriteString(s)
}

// String returns the text accumulated so far.
func (d *DisplayBuffer) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.b.String()
}
