package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemory is the process-local Store. Nothing survives a restart.
type InMemory struct {
	mu       sync.RWMutex
	seq      int64
	runs     map[string][]Run
	memories map[string][]Record
	now      func() time.Time
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		runs:     make(map[string][]Run),
		memories: make(map[string][]Record),
		now:      time.Now,
	}
}

func (m *InMemory) AppendRun(ctx context.Context, run Run) error {
	if run.SessionID == "" {
		return fmt.Errorf("run has no session id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	run.Seq = m.seq
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = m.now()
	}
	m.runs[run.SessionID] = append(m.runs[run.SessionID], run)
	return nil
}

func (m *InMemory) Runs(ctx context.Context, sessionID, agent string, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Run
	for _, r := range m.runs[sessionID] {
		if agent == "" || r.Agent == agent {
			out = append(out, r)
		}
	}
	return tailRuns(out, limit), nil
}

func (m *InMemory) AddMemory(ctx context.Context, sessionID, content string, topics []string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	rec := Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		Topics:    append([]string(nil), topics...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.memories[sessionID] = append(m.memories[sessionID], rec)
	return rec, nil
}

func (m *InMemory) UpdateMemory(ctx context.Context, sessionID, id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.memories[sessionID]
	for i := range recs {
		if recs[i].ID == id {
			recs[i].Content = content
			recs[i].UpdatedAt = m.now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (m *InMemory) DeleteMemory(ctx context.Context, sessionID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.memories[sessionID]
	for i := range recs {
		if recs[i].ID == id {
			m.memories[sessionID] = append(recs[:i:i], recs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (m *InMemory) Memories(ctx context.Context, sessionID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Record(nil), m.memories[sessionID]...), nil
}

func (m *InMemory) SearchMemories(ctx context.Context, sessionID, query string, limit int) ([]Record, error) {
	recs, _ := m.Memories(ctx, sessionID)
	return RankByKeywords(recs, query, limit), nil
}

func (m *InMemory) ClearSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, sessionID)
	delete(m.memories, sessionID)
	return nil
}

func (m *InMemory) Close() error { return nil }
