// Package milvus recalls memory records by semantic similarity. Records and
// their embeddings live in a Milvus collection; run history is delegated to
// another Store.
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"research-assistant/llm/memory"
)

// Embedder turns texts into vectors. The OpenAI provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// Config selects the collection and the embedding model.
type Config struct {
	Address        string
	Collection     string
	Recreate       bool
	EmbeddingModel string
	Dimension      int
}

// Store is a memory.Store whose records are searchable by meaning.
type Store struct {
	memory.Store // run history
	index        vectorIndex
	embedder     Embedder
	model        string
	now          func() time.Time
}

// New connects to Milvus and prepares the collection. base keeps the run
// history.
func New(ctx context.Context, cfg Config, embedder Embedder, base memory.Store) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("milvus memory needs an embedder")
	}
	idx, err := newMilvusIndex(ctx, cfg.Address, cfg.Collection, cfg.Dimension)
	if err != nil {
		return nil, err
	}
	s, err := newStore(ctx, idx, cfg, embedder, base)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	return s, nil
}

func newStore(ctx context.Context, idx vectorIndex, cfg Config, embedder Embedder, base memory.Store) (*Store, error) {
	if err := idx.Ensure(ctx, cfg.Recreate); err != nil {
		return nil, err
	}
	if base == nil {
		base = memory.NewInMemory()
	}
	return &Store{Store: base, index: idx, embedder: embedder, model: cfg.EmbeddingModel, now: time.Now}, nil
}

func sessionExpr(sessionID string) string {
	return "session_id == " + strconv.Quote(sessionID)
}

func recordExpr(sessionID, id string) string {
	return sessionExpr(sessionID) + " && id == " + strconv.Quote(id)
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedder.Embed(ctx, s.model, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed memory: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed memory: got %d vectors", len(vecs))
	}
	return vecs[0], nil
}

func toRecord(r row) (memory.Record, error) {
	rec := memory.Record{
		ID:        r.ID,
		SessionID: r.SessionID,
		Content:   r.Content,
		CreatedAt: time.Unix(0, r.CreatedAt),
		UpdatedAt: time.Unix(0, r.UpdatedAt),
	}
	if r.Topics != "" {
		if err := json.Unmarshal([]byte(r.Topics), &rec.Topics); err != nil {
			return memory.Record{}, fmt.Errorf("decode topics of memory %s: %w", r.ID, err)
		}
	}
	return rec, nil
}

func toRecords(rows []row) ([]memory.Record, error) {
	recs := make([]memory.Record, len(rows))
	for i, r := range rows {
		rec, err := toRecord(r)
		if err != nil {
			return nil, err
		}
		recs[i] = rec
	}
	return recs, nil
}

func (s *Store) AddMemory(ctx context.Context, sessionID, content string, topics []string) (memory.Record, error) {
	vec, err := s.embed(ctx, content)
	if err != nil {
		return memory.Record{}, err
	}
	topicsJSON, _ := json.Marshal(topics)
	now := s.now().UnixNano()
	r := row{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		Topics:    string(topicsJSON),
		CreatedAt: now,
		UpdatedAt: now,
		Embedding: vec,
	}
	if err := s.index.Upsert(ctx, []row{r}); err != nil {
		return memory.Record{}, err
	}
	return toRecord(r)
}

func (s *Store) find(ctx context.Context, sessionID, id string) (row, error) {
	rows, err := s.index.Query(ctx, recordExpr(sessionID, id))
	if err != nil {
		return row{}, err
	}
	if len(rows) == 0 {
		return row{}, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	return rows[0], nil
}

func (s *Store) UpdateMemory(ctx context.Context, sessionID, id, content string) error {
	r, err := s.find(ctx, sessionID, id)
	if err != nil {
		return err
	}
	if r.Embedding, err = s.embed(ctx, content); err != nil {
		return err
	}
	r.Content = content
	r.UpdatedAt = s.now().UnixNano()
	return s.index.Upsert(ctx, []row{r})
}

func (s *Store) DeleteMemory(ctx context.Context, sessionID, id string) error {
	if _, err := s.find(ctx, sessionID, id); err != nil {
		return err
	}
	return s.index.Delete(ctx, recordExpr(sessionID, id))
}

func (s *Store) Memories(ctx context.Context, sessionID string) ([]memory.Record, error) {
	rows, err := s.index.Query(ctx, sessionExpr(sessionID))
	if err != nil {
		return nil, err
	}
	recs, err := toRecords(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return recs, nil
}

// SearchMemories returns the records nearest to query by cosine similarity.
func (s *Store) SearchMemories(ctx context.Context, sessionID, query string, limit int) ([]memory.Record, error) {
	if limit <= 0 {
		limit = 5
	}
	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := s.index.Search(ctx, sessionExpr(sessionID), vec, limit)
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	if err := s.index.Delete(ctx, sessionExpr(sessionID)); err != nil {
		return err
	}
	return s.Store.ClearSession(ctx, sessionID)
}

func (s *Store) Close() error {
	err := s.index.Close()
	if baseErr := s.Store.Close(); err == nil {
		err = baseErr
	}
	return err
}
