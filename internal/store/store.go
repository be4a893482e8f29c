// ABOUTME: SessionStore interface and data types for larder-gateway persistence
// ABOUTME: Defines the per-channel Session record shared by the SQLite and file backends

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrCorruptRecord is returned when a stored record cannot be decoded or fails validation
var ErrCorruptRecord = errors.New("corrupt session record")

// ErrInvalidChannel is returned when a channel identifier cannot be used as a key
var ErrInvalidChannel = errors.New("invalid channel")

// Session is the bookkeeping persisted for one channel between connections.
type Session struct {
	SessionID        string // opaque runtime token, empty when none was issued
	LastMessageTime  time.Time
	UserMessageCount int
}

// ChannelSession pairs a stored session with the channel it is keyed by.
type ChannelSession struct {
	Channel   string
	Session   *Session
	UpdatedAt time.Time
}

// SessionStore persists one Session per channel with last-write-wins semantics.
// Implementations create their backing storage lazily.
type SessionStore interface {
	// GetSession returns ErrNotFound when the channel has no record and
	// ErrCorruptRecord when the record exists but is unusable.
	GetSession(ctx context.Context, channel string) (*Session, error)
	SaveSession(ctx context.Context, channel string, session *Session) error
	DeleteSession(ctx context.Context, channel string) error
	ListSessions(ctx context.Context) ([]*ChannelSession, error)
	Close() error
}
