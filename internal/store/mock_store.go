// ABOUTME: Mock SessionStore implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject read/write failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory SessionStore implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by channel
	updated  map[string]time.Time
	saves    int

	// GetErr and SaveErr, when set, are returned by every call
	GetErr  error
	SaveErr error
}

var _ SessionStore = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*Session),
		updated:  make(map[string]time.Time),
	}
}

// GetSession returns a copy of the stored session.
func (m *MockStore) GetSession(ctx context.Context, channel string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	s, ok := m.sessions[channel]
	if !ok {
		return nil, ErrNotFound
	}
	result := *s
	return &result, nil
}

// SaveSession stores a copy of session.
func (m *MockStore) SaveSession(ctx context.Context, channel string, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if channel == "" {
		return ErrInvalidChannel
	}
	s := *session
	m.sessions[channel] = &s
	m.updated[channel] = time.Now()
	m.saves++
	return nil
}

// DeleteSession removes the session for channel.
func (m *MockStore) DeleteSession(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, channel)
	delete(m.updated, channel)
	return nil
}

// ListSessions returns all sessions ordered by channel.
func (m *MockStore) ListSessions(ctx context.Context) ([]*ChannelSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*ChannelSession, 0, len(m.sessions))
	for ch, s := range m.sessions {
		cp := *s
		result = append(result, &ChannelSession{Channel: ch, Session: &cp, UpdatedAt: m.updated[ch]})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Channel < result[j].Channel })
	return result, nil
}

// SaveCount reports how many successful saves have happened.
func (m *MockStore) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
