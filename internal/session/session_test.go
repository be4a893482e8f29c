// ABOUTME: Tests for the session load/save facade and resume resolution
// ABOUTME: Read failures of any kind degrade to an absent descriptor

package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/larder-gateway/internal/store"
)

func TestStore_LoadAbsent(t *testing.T) {
	s := NewStore(store.NewMockStore(), Policy{}, nil)

	assert.Nil(t, s.Load(context.Background(), "kitchen"))
}

func TestStore_LoadBackendError(t *testing.T) {
	backend := store.NewMockStore()
	backend.GetErr = errors.New("disk on fire")
	s := NewStore(backend, Policy{}, nil)

	assert.Nil(t, s.Load(context.Background(), "kitchen"))
}

func TestStore_LoadCorruptRecord(t *testing.T) {
	backend := store.NewMockStore()
	backend.GetErr = store.ErrCorruptRecord
	s := NewStore(backend, Policy{}, nil)

	d, resumed := s.Resolve(context.Background(), "kitchen", time.Now())
	assert.False(t, resumed)
	assert.Equal(t, &Descriptor{}, d)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	backends := map[string]store.SessionStore{
		"mock": store.NewMockStore(),
		"file": store.NewFileStore(t.TempDir()),
	}
	sqlite, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	backends["sqlite"] = sqlite

	want := &Descriptor{
		SessionID:        "sess-1",
		LastMessageTime:  time.Date(2025, 4, 4, 4, 4, 4, 4, time.UTC),
		UserMessageCount: 12,
	}

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			s := NewStore(backend, Policy{}, nil)
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, "kitchen", want))
			got := s.Load(ctx, "kitchen")
			require.NotNil(t, got)
			assert.Equal(t, want.SessionID, got.SessionID)
			assert.Equal(t, want.UserMessageCount, got.UserMessageCount)
			assert.True(t, want.LastMessageTime.Equal(got.LastMessageTime))
		})
	}
}

func TestStore_SaveError(t *testing.T) {
	backend := store.NewMockStore()
	backend.SaveErr = errors.New("read-only")
	s := NewStore(backend, Policy{}, nil)

	err := s.Save(context.Background(), "kitchen", &Descriptor{})
	assert.ErrorIs(t, err, backend.SaveErr)
	assert.Error(t, s.Save(context.Background(), "kitchen", nil))
}

func TestStore_Resolve(t *testing.T) {
	now := time.Now()
	ctx := context.Background()

	t.Run("resumes recent session", func(t *testing.T) {
		backend := store.NewMockStore()
		require.NoError(t, backend.SaveSession(ctx, "kitchen", &store.Session{
			SessionID: "keep-me", LastMessageTime: now.Add(-10 * time.Second), UserMessageCount: 3,
		}))
		s := NewStore(backend, Policy{}, nil)

		d, resumed := s.Resolve(ctx, "kitchen", now)
		assert.True(t, resumed)
		assert.Equal(t, "keep-me", d.SessionID)
		assert.Equal(t, 3, d.UserMessageCount)
	})

	t.Run("discards stale long session", func(t *testing.T) {
		backend := store.NewMockStore()
		require.NoError(t, backend.SaveSession(ctx, "kitchen", &store.Session{
			SessionID: "old", LastMessageTime: now.Add(-2 * time.Hour), UserMessageCount: 9,
		}))
		s := NewStore(backend, Policy{}, nil)

		d, resumed := s.Resolve(ctx, "kitchen", now)
		assert.False(t, resumed)
		assert.Empty(t, d.SessionID)
		assert.Equal(t, 0, d.UserMessageCount)
	})

	t.Run("fresh when nothing stored", func(t *testing.T) {
		s := NewStore(store.NewMockStore(), Policy{}, nil)

		d, resumed := s.Resolve(ctx, "kitchen", now)
		assert.False(t, resumed)
		require.NotNil(t, d)
	})
}

func TestNewStore_DefaultPolicy(t *testing.T) {
	s := NewStore(store.NewMockStore(), Policy{}, nil)
	assert.Equal(t, DefaultPolicy(), s.Policy())

	custom := Policy{IdleThreshold: time.Minute, MinMessages: 1}
	assert.Equal(t, custom, NewStore(store.NewMockStore(), custom, nil).Policy())
}
