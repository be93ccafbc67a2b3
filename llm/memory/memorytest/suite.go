// Package memorytest checks Store implementations against the shared contract.
package memorytest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-assistant/llm/memory"
)

// Run exercises a Store. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) memory.Store) {
	ctx := context.Background()

	t.Run("runs keep insertion order", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			agent := "InternetSearcher"
			if i%2 == 1 {
				agent = "WebCrawler"
			}
			require.NoError(t, s.AppendRun(ctx, memory.Run{
				SessionID: "s1",
				Agent:     agent,
				Input:     fmt.Sprintf("q%d", i),
				Output:    fmt.Sprintf("a%d", i),
				ToolCalls: []memory.ToolCallRecord{{Name: "duckduckgo_search", Result: "r"}},
			}))
		}
		require.NoError(t, s.AppendRun(ctx, memory.Run{SessionID: "s2", Agent: "InternetSearcher", Input: "other"}))

		all, err := s.Runs(ctx, "s1", "", 0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		for i, r := range all {
			assert.Equal(t, fmt.Sprintf("q%d", i), r.Input)
			assert.NotEmpty(t, r.ID)
			assert.False(t, r.CreatedAt.IsZero())
			if i > 0 {
				assert.Greater(t, r.Seq, all[i-1].Seq)
			}
		}
		assert.Equal(t, "duckduckgo_search", all[0].ToolCalls[0].Name)

		last, err := s.Runs(ctx, "s1", "InternetSearcher", 2)
		require.NoError(t, err)
		require.Len(t, last, 2)
		assert.Equal(t, "q2", last[0].Input)
		assert.Equal(t, "q4", last[1].Input)

		none, err := s.Runs(ctx, "missing", "", 3)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("runs round trip", func(t *testing.T) {
		s := newStore(t)
		want := memory.Run{
			SessionID: "s1",
			Agent:     "HackerNewsMonitor",
			Input:     "What's trending on Hacker News today?",
			Output:    "1. Story 5 (50 points)",
			ToolCalls: []memory.ToolCallRecord{{
				Name:      "hackernews_top_stories",
				Arguments: map[string]any{"limit": 5.0, "kind": "top"},
				Result:    "Story 5",
				Duration:  420 * time.Millisecond,
			}, {
				Name:    "hackernews_user_details",
				Result:  "user not found",
				IsError: true,
			}},
			Error: "partial answer",
		}
		require.NoError(t, s.AppendRun(ctx, want))

		got, err := s.Runs(ctx, "s1", "HackerNewsMonitor", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		ignore := cmpopts.IgnoreFields(memory.Run{}, "ID", "Seq", "CreatedAt")
		if diff := cmp.Diff(want, got[0], ignore, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("stored run mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("memory records", func(t *testing.T) {
		s := newStore(t)
		a, err := s.AddMemory(ctx, "s1", "User prefers answers in German", []string{"language"})
		require.NoError(t, err)
		b, err := s.AddMemory(ctx, "s1", "User works on the Kubernetes operator project", nil)
		require.NoError(t, err)
		_, err = s.AddMemory(ctx, "s2", "unrelated", nil)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)

		recs, err := s.Memories(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, a.ID, recs[0].ID)
		assert.Equal(t, []string{"language"}, recs[0].Topics)

		require.NoError(t, s.UpdateMemory(ctx, "s1", b.ID, "User works on the Kubernetes scheduler"))
		hits, err := s.SearchMemories(ctx, "s1", "which kubernetes component?", 5)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, b.ID, hits[0].ID)
		assert.Equal(t, "User works on the Kubernetes scheduler", hits[0].Content)

		require.NoError(t, s.DeleteMemory(ctx, "s1", a.ID))
		assert.ErrorIs(t, s.DeleteMemory(ctx, "s1", a.ID), memory.ErrNotFound)
		assert.ErrorIs(t, s.UpdateMemory(ctx, "s2", b.ID, "x"), memory.ErrNotFound)

		recs, err = s.Memories(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("clear session", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AppendRun(ctx, memory.Run{SessionID: "old", Agent: "ResearchAssistantTeam", Input: "q"}))
		_, err := s.AddMemory(ctx, "old", "remember me", nil)
		require.NoError(t, err)
		_, err = s.AddMemory(ctx, "keep", "keep me", nil)
		require.NoError(t, err)

		require.NoError(t, s.ClearSession(ctx, "old"))

		runs, err := s.Runs(ctx, "old", "", 0)
		require.NoError(t, err)
		assert.Empty(t, runs)
		recs, err := s.Memories(ctx, "old")
		require.NoError(t, err)
		assert.Empty(t, recs)
		recs, err = s.Memories(ctx, "keep")
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("concurrent appends", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.AppendRun(ctx, memory.Run{SessionID: "s", Agent: "a", Input: fmt.Sprint(i)}))
			}()
		}
		wg.Wait()
		runs, err := s.Runs(ctx, "s", "a", 0)
		require.NoError(t, err)
		assert.Len(t, runs, 20)
	})
}
