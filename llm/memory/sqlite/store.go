// Package sqlite persists conversation memory in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"research-assistant/llm/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	agent TEXT NOT NULL,
	input TEXT NOT NULL,
	output TEXT NOT NULL,
	tool_calls_json TEXT,
	error TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_session_agent ON runs(session_id, agent, seq);

CREATE TABLE IF NOT EXISTS memories (
	rowid_seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	content TEXT NOT NULL,
	topics_json TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
`

// Store is a memory.Store backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	// mu serializes writers; SQLite allows a single writer.
	mu sync.Mutex
}

// Open creates or opens the database at path. ":memory:" keeps it in RAM.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) AppendRun(ctx context.Context, run memory.Run) error {
	if run.SessionID == "" {
		return fmt.Errorf("run has no session id")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	calls, err := json.Marshal(run.ToolCalls)
	if err != nil {
		return fmt.Errorf("encode tool calls: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, agent, input, output, tool_calls_json, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Agent, run.Input, run.Output, string(calls), run.Error, run.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) Runs(ctx context.Context, sessionID, agent string, limit int) ([]memory.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	// Newest first for the LIMIT, reversed below.
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, session_id, agent, input, output, tool_calls_json, error, created_at
		 FROM runs WHERE session_id = ? AND (? = '' OR agent = ?)
		 ORDER BY seq DESC LIMIT ?`,
		sessionID, agent, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []memory.Run
	for rows.Next() {
		var (
			r         memory.Run
			callsJSON sql.NullString
			errText   sql.NullString
		)
		if err := rows.Scan(&r.Seq, &r.ID, &r.SessionID, &r.Agent, &r.Input, &r.Output, &callsJSON, &errText, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if callsJSON.Valid && callsJSON.String != "" {
			if err := json.Unmarshal([]byte(callsJSON.String), &r.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls of run %s: %w", r.ID, err)
			}
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}

func (s *Store) AddMemory(ctx context.Context, sessionID, content string, topics []string) (memory.Record, error) {
	now := time.Now().UTC()
	rec := memory.Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		Topics:    append([]string(nil), topics...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	topicsJSON, err := json.Marshal(rec.Topics)
	if err != nil {
		return memory.Record{}, fmt.Errorf("encode topics: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (id, session_id, content, topics_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Content, string(topicsJSON), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return memory.Record{}, fmt.Errorf("insert memory: %w", err)
	}
	return rec, nil
}

func (s *Store) UpdateMemory(ctx context.Context, sessionID, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET content = ?, updated_at = ? WHERE session_id = ? AND id = ?`,
		content, time.Now().UTC(), sessionID, id)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	return requireAffected(res, id)
}

func (s *Store) DeleteMemory(ctx context.Context, sessionID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE session_id = ? AND id = ?`, sessionID, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	return nil
}

func (s *Store) Memories(ctx context.Context, sessionID string) ([]memory.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, content, topics_json, created_at, updated_at
		 FROM memories WHERE session_id = ? ORDER BY rowid_seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var recs []memory.Record
	for rows.Next() {
		var (
			r          memory.Record
			topicsJSON sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Content, &topicsJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if topicsJSON.Valid && topicsJSON.String != "" {
			if err := json.Unmarshal([]byte(topicsJSON.String), &r.Topics); err != nil {
				return nil, fmt.Errorf("decode topics of memory %s: %w", r.ID, err)
			}
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *Store) SearchMemories(ctx context.Context, sessionID, query string, limit int) ([]memory.Record, error) {
	recs, err := s.Memories(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return memory.RankByKeywords(recs, query, limit), nil
}

func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear runs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	return tx.Commit()
}
