// Package memory holds the conversation memory shared by the coordinator and
// every specialist of a session: the append-only run history and the
// free-text memory records the coordinator curates.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"
)

// ErrNotFound is returned when a memory record does not exist in the session.
var ErrNotFound = errors.New("memory record not found")

// ToolCallRecord is one capability invocation made during a run.
type ToolCallRecord struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// Run is one agent turn: the task it was given and the answer it produced.
type Run struct {
	ID        string           `json:"id"`
	Seq       int64            `json:"seq"`
	SessionID string           `json:"session_id"`
	Agent     string           `json:"agent"`
	Input     string           `json:"input"`
	Output    string           `json:"output"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Record is a durable fact about the user or the conversation.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	Topics    []string  `json:"topics,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the shared conversation memory. Implementations are safe for
// concurrent use. Runs are returned in insertion order.
type Store interface {
	AppendRun(ctx context.Context, run Run) error
	// Runs returns the last limit runs of agent in the session, oldest
	// first. An empty agent matches every agent; limit <= 0 returns all.
	Runs(ctx context.Context, sessionID, agent string, limit int) ([]Run, error)

	AddMemory(ctx context.Context, sessionID, content string, topics []string) (Record, error)
	UpdateMemory(ctx context.Context, sessionID, id, content string) error
	DeleteMemory(ctx context.Context, sessionID, id string) error
	Memories(ctx context.Context, sessionID string) ([]Record, error)
	SearchMemories(ctx context.Context, sessionID, query string, limit int) ([]Record, error)

	// ClearSession drops everything recorded under sessionID.
	ClearSession(ctx context.Context, sessionID string) error
	Close() error
}

// tailRuns keeps the last limit entries.
func tailRuns(runs []Run, limit int) []Run {
	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	return runs
}

func tokenize(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) > 2 {
			out[w] = struct{}{}
		}
	}
	return out
}

// RankByKeywords orders records by how many query words they share,
// dropping records with no overlap. Ties keep the most recent first.
func RankByKeywords(records []Record, query string, limit int) []Record {
	q := tokenize(query)
	type scored struct {
		rec   Record
		score int
	}
	var hits []scored
	for _, r := range records {
		words := tokenize(r.Content + " " + strings.Join(r.Topics, " "))
		score := 0
		for w := range q {
			if _, ok := words[w]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{r, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].rec.UpdatedAt.After(hits[j].rec.UpdatedAt)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Record, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out
}
