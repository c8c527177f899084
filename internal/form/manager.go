package form

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("form: session not found")

// Manager keeps sessions in memory and expires idle ones.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	assessor Assessor
	ttl      time.Duration
	now      func() time.Time
}

// NewManager creates a registry whose sessions submit through a.
func NewManager(a Assessor, ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		assessor: a,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create starts a new session.
func (m *Manager) Create() *Session {
	s := newSession(uuid.NewString(), m.assessor, m.now)
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete abandons and removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Abandon()
	return nil
}

// Len reports how many sessions are held.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Prune removes sessions idle for longer than the TTL. Sessions with a
// submission in flight are kept.
func (m *Manager) Prune() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		touched, busy := s.idleSince()
		if busy || touched.After(cutoff) {
			continue
		}
		s.Abandon()
		delete(m.sessions, id)
		n++
	}
	return n
}

// Run prunes periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	if m.ttl <= 0 {
		return
	}
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Prune(); n > 0 {
				zap.L().Debug("pruned idle form sessions", zap.Int("count", n))
			}
		}
	}
}
