package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"astro_insight/internal/core"

	"github.com/bytedance/sonic"
)

// SessionTTL is the default idle lifetime of a session (40 minutes)
const SessionTTL = 40 * time.Minute

// ErrSessionNotFound is returned for unknown and expired sessions
var ErrSessionNotFound = errors.New("session not found")

// Store persists session records between requests
type Store interface {
	Load(ctx context.Context, sessionID string) (*core.Session, error)
	Save(ctx context.Context, session *core.Session) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryStore keeps sessions in process memory. Records are stored encoded so
// callers never share a *core.Session with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	data    []byte
	touched time.Time
}

// NewMemoryStore creates an in-memory store; ttl <= 0 uses SessionTTL
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Load returns a copy of the stored session
func (m *MemoryStore) Load(ctx context.Context, sessionID string) (*core.Session, error) {
	m.mu.RLock()
	entry, exists := m.sessions[sessionID]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	// Check if session has expired
	if m.now().Sub(entry.touched) > m.ttl {
		m.mu.Lock()
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s expired", ErrSessionNotFound, sessionID)
	}

	var session core.Session
	if err := sonic.Unmarshal(entry.data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

// Save saves or updates a session
func (m *MemoryStore) Save(ctx context.Context, session *core.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	data, err := sonic.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.ID, err)
	}

	m.mu.Lock()
	m.sessions[session.ID] = memoryEntry{data: data, touched: m.now()}
	m.mu.Unlock()
	return nil
}

// Delete removes a session
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored sessions, expired ones included
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
