// Package session manages the lifecycle of form sessions.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/matthewbaird/eventform/internal/form"
)

// Session holds one live form.
type Session struct {
	ID        string     `json:"id"`
	Form      *form.Form `json:"-"`
	CreatedAt time.Time  `json:"created_at"`

	mu           sync.Mutex
	lastActiveAt time.Time
}

// LastActiveAt returns the last time the session was used.
func (s *Session) LastActiveAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActiveAt = now
	s.mu.Unlock()
}

func (s *Session) expired(now time.Time, maxAge, idle time.Duration) bool {
	if maxAge > 0 && now.Sub(s.CreatedAt) > maxAge {
		return true
	}
	return idle > 0 && now.Sub(s.LastActiveAt()) > idle
}

// Factory builds the form of a new session.
type Factory func(ctx context.Context, id string) (*form.Form, error)

// Manager handles session creation, lookup, and cleanup.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	factory     Factory
	maxAge      time.Duration
	idleTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// NewManager creates a session manager with the given timeouts. Zero
// timeouts never expire.
func NewManager(factory Factory, maxAge, idleTimeout time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		factory:     factory,
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
		now:         time.Now,
		logger:      logger.With().Str("component", "session").Logger(),
	}
}

// Create builds and starts a new form session. A form whose datasets failed
// to load is still returned; the failure is logged and its selects degrade.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	id := uuid.New().String()
	f, err := m.factory(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := f.Start(ctx); err != nil {
		m.logger.Warn().Err(err).Str("session", id).Msg("form started degraded")
	}

	now := m.now()
	s := &Session{ID: id, Form: f, CreatedAt: now, lastActiveAt: now}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Debug().Str("session", id).Msg("session created")
	return s, nil
}

// Get retrieves a session by ID and marks it active. Returns nil if not
// found or expired.
func (m *Manager) Get(ctx context.Context, id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	now := m.now()
	if s.expired(now, m.maxAge, m.idleTimeout) {
		m.Remove(ctx, id)
		return nil
	}
	s.touch(now)
	return s
}

// Remove deletes a session and closes its form.
func (m *Manager) Remove(ctx context.Context, id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := s.Form.Close(ctx); err != nil {
		m.logger.Warn().Err(err).Str("session", id).Msg("closing form")
	}
	return true
}

// Cleanup removes all expired and idle sessions and returns how many were
// removed.
func (m *Manager) Cleanup(ctx context.Context) int {
	now := m.now()
	var stale []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if s.expired(now, m.maxAge, m.idleTimeout) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range stale {
		if m.Remove(ctx, id) {
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info().Int("removed", removed).Msg("expired sessions cleaned up")
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup(ctx)
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
