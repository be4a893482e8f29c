// ABOUTME: Process-wide registry admitting at most one live connection per channel.
// ABOUTME: Acquire is an atomic test-and-insert; Release is idempotent.

package channel

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// ErrChannelActive indicates another connection already holds the channel.
var ErrChannelActive = errors.New("channel already active")

// ErrMissingChannel indicates a connection arrived without a channel identifier.
var ErrMissingChannel = errors.New("missing channel")

// Registry tracks which channels currently have a live connection.
type Registry struct {
	active map[string]struct{}
	mu     sync.Mutex
	logger *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		active: make(map[string]struct{}),
		logger: logger,
	}
}

// Acquire claims channel. It returns false, and changes nothing, if the
// channel is already held.
func (r *Registry) Acquire(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[channel]; exists {
		return false
	}

	r.active[channel] = struct{}{}
	r.logger.Info("=== CHANNEL CLAIMED ===",
		"channel", channel,
		"active_channels", len(r.active),
	)
	return true
}

// Release frees channel. Releasing a channel that is not held is a no-op.
func (r *Registry) Release(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[channel]; exists {
		delete(r.active, channel)
		r.logger.Info("=== CHANNEL RELEASED ===",
			"channel", channel,
			"active_channels", len(r.active),
		)
	}
}

// Claim validates and acquires channel, returning a release func that is
// safe to call more than once. Callers defer the release immediately.
func (r *Registry) Claim(channel string) (release func(), err error) {
	if channel == "" {
		return nil, ErrMissingChannel
	}
	if !r.Acquire(channel) {
		return nil, ErrChannelActive
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.Release(channel) })
	}, nil
}

// Held reports whether channel is currently claimed.
func (r *Registry) Held(channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[channel]
	return ok
}

// Active returns the claimed channels in sorted order.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]string, 0, len(r.active))
	for ch := range r.active {
		result = append(result, ch)
	}
	sort.Strings(result)
	return result
}

// Len returns the number of claimed channels.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
