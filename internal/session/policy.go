// ABOUTME: Resume policy deciding whether a connection starts a new runtime session
// ABOUTME: A session is discarded only when it is both stale and long enough

package session

import "time"

const (
	// DefaultIdleThreshold is how long a channel must be idle before it may be discarded.
	DefaultIdleThreshold = time.Hour

	// DefaultMinMessages is the message count a channel must exceed before it may be discarded.
	DefaultMinMessages = 5
)

// Policy holds the thresholds for the resume decision.
type Policy struct {
	IdleThreshold time.Duration
	MinMessages   int
}

// DefaultPolicy returns the policy with the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{IdleThreshold: DefaultIdleThreshold, MinMessages: DefaultMinMessages}
}

// ShouldCreateNew reports whether a fresh session is needed instead of resuming d.
//
// An absent descriptor, or one without a session token, always starts fresh.
// Otherwise a new session is created only when the idle time exceeds the
// threshold AND the message count exceeds the minimum. Both comparisons are strict.
func (p Policy) ShouldCreateNew(d *Descriptor, now time.Time) bool {
	if d == nil || d.SessionID == "" {
		return true
	}
	elapsed := now.Sub(d.LastMessageTime)
	return elapsed > p.IdleThreshold && d.UserMessageCount > p.MinMessages
}

// ShouldCreateNew applies the default policy.
func ShouldCreateNew(d *Descriptor, now time.Time) bool {
	return DefaultPolicy().ShouldCreateNew(d, now)
}
