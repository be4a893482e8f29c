// ABOUTME: Tests for the resume policy thresholds
// ABOUTME: The policy is a strict conjunction of staleness and conversation length

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldCreateNew(t *testing.T) {
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	ago := func(seconds int) time.Time { return now.Add(-time.Duration(seconds) * time.Second) }

	tests := []struct {
		name string
		d    *Descriptor
		want bool
	}{
		{"absent descriptor", nil, true},
		{"no session token", &Descriptor{LastMessageTime: ago(10), UserMessageCount: 1}, true},
		{"stale and long", &Descriptor{SessionID: "s", LastMessageTime: ago(3601), UserMessageCount: 6}, true},
		{"stale but short", &Descriptor{SessionID: "s", LastMessageTime: ago(3601), UserMessageCount: 5}, false},
		{"fresh and long", &Descriptor{SessionID: "s", LastMessageTime: ago(100), UserMessageCount: 100}, false},
		{"exactly one hour", &Descriptor{SessionID: "s", LastMessageTime: ago(3600), UserMessageCount: 50}, false},
		{"recent and short", &Descriptor{SessionID: "s", LastMessageTime: ago(10), UserMessageCount: 3}, false},
		{"very stale, zero messages", &Descriptor{SessionID: "s", LastMessageTime: ago(86400 * 30), UserMessageCount: 0}, false},
		{"future timestamp", &Descriptor{SessionID: "s", LastMessageTime: now.Add(time.Hour), UserMessageCount: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldCreateNew(tt.d, now))
		})
	}
}

func TestPolicy_CustomThresholds(t *testing.T) {
	now := time.Now()
	p := Policy{IdleThreshold: time.Minute, MinMessages: 0}

	assert.True(t, p.ShouldCreateNew(&Descriptor{SessionID: "s", LastMessageTime: now.Add(-2 * time.Minute), UserMessageCount: 1}, now))
	assert.False(t, p.ShouldCreateNew(&Descriptor{SessionID: "s", LastMessageTime: now.Add(-2 * time.Minute), UserMessageCount: 0}, now))
	assert.False(t, p.ShouldCreateNew(&Descriptor{SessionID: "s", LastMessageTime: now.Add(-30 * time.Second), UserMessageCount: 9}, now))
}

func TestDescriptor_RecordTurn(t *testing.T) {
	d := &Descriptor{SessionID: "s", UserMessageCount: 2}
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	d.RecordTurn(at)

	assert.Equal(t, 3, d.UserMessageCount)
	assert.Equal(t, at, d.LastMessageTime)
	assert.Equal(t, "s", d.SessionID)
}
