// ABOUTME: Session descriptor and the degrading load/save facade over a SessionStore
// ABOUTME: Load never fails; unreadable records are treated as absent

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/larder-gateway/internal/store"
)

// Descriptor is the bookkeeping that lets a channel resume its runtime session.
// It is owned by the single connection holding the channel.
type Descriptor struct {
	SessionID        string
	LastMessageTime  time.Time
	UserMessageCount int
}

// RecordTurn marks one completed user turn at now.
func (d *Descriptor) RecordTurn(now time.Time) {
	d.UserMessageCount++
	d.LastMessageTime = now
}

// Clone returns a copy of d. A nil receiver returns nil.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Store wraps a store.SessionStore with the load/save contract the connection
// handler relies on.
type Store struct {
	backend store.SessionStore
	policy  Policy
	logger  *slog.Logger
}

// NewStore creates a Store. A zero policy is replaced with DefaultPolicy.
func NewStore(backend store.SessionStore, policy Policy, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	return &Store{
		backend: backend,
		policy:  policy,
		logger:  logger.With("component", "sessions"),
	}
}

// Policy returns the resume policy in use.
func (s *Store) Policy() Policy {
	return s.policy
}

// Load returns the stored descriptor for channel, or nil when there is none.
// Missing, unreadable, and corrupt records all yield nil.
func (s *Store) Load(ctx context.Context, channel string) *Descriptor {
	rec, err := s.backend.GetSession(ctx, channel)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("session record unusable, starting fresh", "channel", channel, "error", err)
		}
		return nil
	}
	return &Descriptor{
		SessionID:        rec.SessionID,
		LastMessageTime:  rec.LastMessageTime,
		UserMessageCount: rec.UserMessageCount,
	}
}

// Save durably persists d for channel, overwriting any previous record.
func (s *Store) Save(ctx context.Context, channel string, d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("saving session for %q: nil descriptor", channel)
	}
	err := s.backend.SaveSession(ctx, channel, &store.Session{
		SessionID:        d.SessionID,
		LastMessageTime:  d.LastMessageTime,
		UserMessageCount: d.UserMessageCount,
	})
	if err != nil {
		return fmt.Errorf("saving session for %q: %w", channel, err)
	}
	return nil
}

// Resolve loads the descriptor for channel and applies the resume policy.
// It returns the descriptor the connection should own and whether it resumes
// a prior session. A fresh descriptor is empty.
func (s *Store) Resolve(ctx context.Context, channel string, now time.Time) (*Descriptor, bool) {
	prior := s.Load(ctx, channel)
	if s.policy.ShouldCreateNew(prior, now) {
		if prior != nil {
			s.logger.Info("discarding stale session",
				"channel", channel,
				"session_id", prior.SessionID,
				"idle", now.Sub(prior.LastMessageTime).Round(time.Second),
				"messages", prior.UserMessageCount,
			)
		}
		return &Descriptor{}, false
	}
	return prior, true
}
