package memory_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"research-assistant/llm/memory"
	"research-assistant/llm/memory/memorytest"
)

func TestInMemoryStore(t *testing.T) {
	memorytest.Run(t, func(t *testing.T) memory.Store { return memory.NewInMemory() })
}

func TestRankByKeywords(t *testing.T) {
	now := time.Now()
	recs := []memory.Record{
		{ID: "old", Content: "likes Go and Rust", UpdatedAt: now.Add(-time.Hour)},
		{ID: "new", Content: "likes Go", UpdatedAt: now},
		{ID: "both", Content: "writes Rust services", Topics: []string{"go"}, UpdatedAt: now.Add(-2 * time.Hour)},
		{ID: "none", Content: "unrelated", UpdatedAt: now},
	}

	got := memory.RankByKeywords(recs, "rust services", 0)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"both", "old"}, ids)

	// Words shorter than three letters are ignored.
	assert.Empty(t, memory.RankByKeywords(recs, "go", 0))
	assert.Len(t, memory.RankByKeywords(recs, "likes", 1), 1)
	assert.Equal(t, "new", memory.RankByKeywords(recs, "likes", 1)[0].ID)
}
