// ABOUTME: Per-connection tool context: the emitter handle and the current user
// ABOUTME: Tool effects are methods on Toolset so every call reaches the socket it was bound to

package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/larder-gateway/internal/meals"
	"github.com/2389/larder-gateway/internal/relay"
)

// emitTimeout bounds how long a tool call waits on a slow socket.
const emitTimeout = 10 * time.Second

// ErrMealsDisabled is returned by LogMeal when no meal logger is configured.
var ErrMealsDisabled = errors.New("meal logging is not enabled")

// MealLogger records meals. Satisfied by *meals.Client.
type MealLogger interface {
	Log(ctx context.Context, m *meals.Meal) (*meals.Meal, error)
}

// ToolsetOptions configures a Toolset.
type ToolsetOptions struct {
	Meals MealLogger
	// DefaultUser is used for meals when neither the call nor the turn names a user.
	DefaultUser string
	Logger      *slog.Logger
}

// Toolset holds everything a tool call needs to act on one connection.
type Toolset struct {
	emitter     relay.Emitter
	meals       MealLogger
	defaultUser string
	logger      *slog.Logger

	mu   sync.RWMutex
	user string
}

// NewToolset creates a Toolset that emits through emitter.
func NewToolset(emitter relay.Emitter, opts ToolsetOptions) *Toolset {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolset{
		emitter:     emitter,
		meals:       opts.Meals,
		defaultUser: opts.DefaultUser,
		logger:      logger.With("component", "toolset"),
	}
}

// SetUser records who is speaking in the current turn.
func (t *Toolset) SetUser(user string) {
	t.mu.Lock()
	t.user = user
	t.mu.Unlock()
}

// User returns the user recorded by SetUser.
func (t *Toolset) User() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.user
}

// MealsEnabled reports whether LogMeal can succeed.
func (t *Toolset) MealsEnabled() bool {
	return t.meals != nil
}

// emit detaches from the caller's cancellation but keeps its values, since
// the MCP transport may finish the HTTP request before the handler runs.
func (t *Toolset) emit(ctx context.Context, ev relay.Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	return t.emitter.Emit(ctx, ev)
}

// DisplayPlot sends a chat.plot event carrying html.
func (t *Toolset) DisplayPlot(ctx context.Context, html string) error {
	t.logger.Info("displaying plot", "bytes", len(html))
	return t.emit(ctx, relay.Plot(html))
}

// RefreshData asks the client to reload its data.
func (t *Toolset) RefreshData(ctx context.Context) error {
	t.logger.Info("requesting data refresh")
	return t.emit(ctx, relay.Refresh())
}

// LogMeal stores m and then asks the client to refresh. An empty UserName is
// filled from the turn's user, falling back to the configured default.
func (t *Toolset) LogMeal(ctx context.Context, m *meals.Meal) (*meals.Meal, error) {
	if t.meals == nil {
		return nil, ErrMealsDisabled
	}
	if m.UserName == "" {
		m.UserName = t.mealUser()
	}

	stored, err := t.meals.Log(ctx, m)
	if err != nil {
		return nil, err
	}

	if err := t.emit(ctx, relay.Refresh()); err != nil {
		t.logger.Warn("refresh after meal not delivered", "error", err)
	}
	return stored, nil
}

func (t *Toolset) mealUser() string {
	if u := t.User(); u != "" && u != "unknown" {
		return u
	}
	return t.defaultUser
}
