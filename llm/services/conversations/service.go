// Package conversations manages chat sessions with the research team.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"research-assistant/llm/services/stream"
)

// SessionPrefix starts every session id.
const SessionPrefix = "team-session-"

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Factory builds the team for a new session.
type Factory func() (Runner, error)

// Options configure the Manager.
type Options struct {
	// ClearOnReset drops the old session's records from the store on reset.
	// Durable stores keep them; the old id is simply never used again.
	ClearOnReset bool
	Defaults     Settings
	Filter       *stream.Filter
	Logger       *zerolog.Logger
	Now          func() time.Time
}

// Manager owns the live sessions.
type Manager struct {
	factory Factory
	opts    Options
	logger  zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(factory Factory, opts Options) *Manager {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if opts.Filter == nil {
		opts.Filter = stream.NewFilter()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		factory:  factory,
		opts:     opts,
		logger:   logger.With().Str("component", "sessions").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Create starts a session with the default settings.
func (m *Manager) Create() (*Session, error) {
	return m.create(m.opts.Defaults)
}

func (m *Manager) create(settings Settings) (*Session, error) {
	runner, err := m.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to build team: %w", err)
	}
	s := &Session{
		id:        SessionPrefix + uuid.NewString(),
		createdAt: m.opts.Now(),
		runner:    runner,
		filter:    m.opts.Filter,
		logger:    m.logger,
		now:       m.opts.Now,
		settings:  settings,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info().Str("session_id", s.id).Msg("session created")
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Reset replaces session id with a brand-new session that keeps only the
// debug toggles. Nothing recorded under the old id is visible to the new one.
// A session that is still answering cannot be reset and yields ErrBusy.
func (m *Manager) Reset(ctx context.Context, id string) (*Session, error) {
	old, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	// The old session stays locked after a successful reset, so a stale
	// reference can never record under the discarded id again.
	if !old.busy.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrBusy, id)
	}
	fresh, err := m.create(old.Settings())
	if err != nil {
		old.busy.Unlock()
		return nil, err
	}

	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.opts.ClearOnReset {
		if err := old.runner.Store().ClearSession(ctx, id); err != nil {
			m.logger.Warn().Err(err).Str("session_id", id).Msg("failed to clear old session")
		}
	}
	m.logger.Info().Str("old_session_id", id).Str("session_id", fresh.id).Msg("session reset")
	return fresh, nil
}

// Delete forgets a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// List returns the live session ids, oldest first.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })
	ids := make([]string, len(all))
	for i, s := range all {
		ids[i] = s.id
	}
	return ids
}
