package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-assistant/llm/memory"
	"research-assistant/llm/memory/memorytest"
)

func TestStoreContract(t *testing.T) {
	memorytest.Run(t, func(t *testing.T) memory.Store {
		s, err := Open(filepath.Join(t.TempDir(), "memory.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestInMemoryDatabase(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.AppendRun(context.Background(), memory.Run{SessionID: "s", Agent: "a", Input: "q"}))
	runs, err := s.Runs(context.Background(), "s", "a", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "memory.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendRun(ctx, memory.Run{SessionID: "s", Agent: "GeneralAssistant", Input: "hello", Output: "hi"}))
	rec, err := s.AddMemory(ctx, "s", "name is Sam", []string{"identity"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())

	runs, err := s.Runs(ctx, "s", "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "hi", runs[0].Output)

	recs, err := s.Memories(ctx, "s")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.ID, recs[0].ID)
	assert.Equal(t, []string{"identity"}, recs[0].Topics)
}

func TestCorruptTopicsAreReported(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.AddMemory(ctx, "s", "name is Sam", []string{"identity"})
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `UPDATE memories SET topics_json = '{not json' WHERE id = ?`, rec.ID)
	require.NoError(t, err)

	_, err = s.Memories(ctx, "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode topics of memory "+rec.ID)
}
