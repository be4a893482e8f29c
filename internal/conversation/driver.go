// ABOUTME: Turn driver that runs one conversation per connection, turn after turn
// ABOUTME: Relays runtime output as events, ends every turn with chat.done, and persists bookkeeping

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/larder-gateway/internal/agent"
	"github.com/2389/larder-gateway/internal/relay"
	"github.com/2389/larder-gateway/internal/session"
)

// saveTimeout bounds the post-turn descriptor save, which runs detached from
// the connection context so a disconnect mid-save still persists.
const saveTimeout = 5 * time.Second

// ErrIncompleteStream is returned when the runtime stream closes without a
// done or error event.
var ErrIncompleteStream = errors.New("runtime stream ended without a result")

// Synthesizer turns text into audio. Satisfied by *speech.Synthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Format() string
}

// UserSetter learns who is speaking in each turn. Satisfied by *bridge.Toolset.
type UserSetter interface {
	SetUser(user string)
}

// Config wires a Driver to one connection.
type Config struct {
	Channel    string
	Runtime    agent.Runtime
	Sessions   *session.Store
	Descriptor *session.Descriptor
	Emitter    relay.Emitter

	// Optional collaborators.
	Synthesizer Synthesizer
	Tools       func() (*agent.ToolAccess, error)
	Users       UserSetter

	Now    func() time.Time
	Logger *slog.Logger
}

// Driver consumes inbound frames sequentially and runs one turn per chat frame.
// It owns its descriptor; nothing else mutates it while the driver runs.
type Driver struct {
	channel  string
	runtime  agent.Runtime
	sessions *session.Store
	desc     *session.Descriptor
	emitter  relay.Emitter
	synth    Synthesizer
	tools    func() (*agent.ToolAccess, error)
	users    UserSetter
	now      func() time.Time
	logger   *slog.Logger
}

// NewDriver creates a Driver. A nil descriptor starts a fresh session.
func NewDriver(cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	desc := cfg.Descriptor
	if desc == nil {
		desc = &session.Descriptor{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Driver{
		channel:  cfg.Channel,
		runtime:  cfg.Runtime,
		sessions: cfg.Sessions,
		desc:     desc,
		emitter:  cfg.Emitter,
		synth:    cfg.Synthesizer,
		tools:    cfg.Tools,
		users:    cfg.Users,
		now:      now,
		logger:   logger.With("component", "driver", "channel", cfg.Channel),
	}
}

// Descriptor returns a copy of the current descriptor.
func (d *Driver) Descriptor() *session.Descriptor {
	return d.desc.Clone()
}

// Run handles frames from inbound until it is closed or ctx is done.
// A closed inbound channel returns nil.
func (d *Driver) Run(ctx context.Context, inbound <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-inbound:
			if !ok {
				return nil
			}

			msg, err := ParseInbound(data)
			if err != nil {
				d.logger.Warn("dropping inbound frame", "error", err)
				continue
			}
			if msg.Type != TypeChat {
				d.logger.Debug("ignoring inbound frame", "type", msg.Type)
				continue
			}
			if strings.TrimSpace(msg.Content) == "" {
				d.logger.Debug("ignoring empty chat frame")
				continue
			}

			if err := d.RunTurn(ctx, msg); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// RunTurn runs one chat turn. chat.done is emitted whether or not the runtime
// succeeds; the descriptor is updated and saved only on success.
func (d *Driver) RunTurn(ctx context.Context, msg *Inbound) error {
	start := d.now()
	if d.users != nil {
		d.users.SetUser(msg.UserName())
	}

	query := &agent.Query{
		Text:      msg.Query(),
		SessionID: d.desc.SessionID,
	}
	if d.tools != nil {
		access, err := d.tools()
		if err != nil {
			d.logger.Warn("tools unavailable for this turn", "error", err)
		} else {
			query.Tools = access
		}
	}

	d.logger.Info("turn started",
		"user", msg.UserName(),
		"resume", query.SessionID != "",
		"turns", d.desc.UserMessageCount,
	)

	var audio sync.WaitGroup
	sessionID, turnErr := d.relay(ctx, query, &audio)
	audio.Wait()

	if err := d.emitter.Emit(ctx, relay.Done()); err != nil {
		d.logger.Debug("chat.done not delivered", "error", err)
		if turnErr == nil {
			turnErr = err
		}
	}

	if turnErr != nil {
		d.logger.Error("turn failed", "error", turnErr, "took", d.now().Sub(start))
		return turnErr
	}

	if sessionID != "" {
		d.desc.SessionID = sessionID
	}
	d.desc.RecordTurn(d.now())
	d.persist(ctx)

	d.logger.Info("turn complete",
		"session_id", d.desc.SessionID,
		"turns", d.desc.UserMessageCount,
		"took", d.now().Sub(start),
	)
	return nil
}

// relay streams one query's responses to the emitter and returns the first
// session id the runtime reported.
func (d *Driver) relay(ctx context.Context, query *agent.Query, audio *sync.WaitGroup) (string, error) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	responses, err := d.runtime.Submit(turnCtx, query)
	if err != nil {
		return "", fmt.Errorf("submitting query: %w", err)
	}

	var sessionID string
	for resp := range responses {
		if sessionID == "" && resp.SessionID != "" {
			sessionID = resp.SessionID
		}

		switch resp.Event {
		case agent.EventText:
			if err := d.emitter.Emit(turnCtx, relay.TextChunk(resp.Text)); err != nil {
				return "", fmt.Errorf("emitting text: %w", err)
			}
			d.speak(ctx, resp.Text, audio)

		case agent.EventToolUse:
			if resp.ToolUse != nil {
				d.logger.Info("runtime called tool", "tool", resp.ToolUse.Name, "id", resp.ToolUse.ID)
			}

		case agent.EventToolResult:
			if resp.ToolResult != nil && resp.ToolResult.IsError {
				d.logger.Warn("tool returned error", "id", resp.ToolResult.ID, "output", resp.ToolResult.Output)
			}

		case agent.EventUsage:
			if resp.Usage != nil {
				d.logger.Debug("turn usage",
					"input_tokens", resp.Usage.InputTokens,
					"output_tokens", resp.Usage.OutputTokens,
					"cost_usd", resp.Usage.CostUSD,
				)
			}

		case agent.EventError:
			return "", fmt.Errorf("runtime error: %s", resp.Error)

		case agent.EventDone:
			return sessionID, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", ErrIncompleteStream
}

// speak synthesizes text in the background and emits chat.audio when ready.
// Failures drop the audio for that chunk only.
func (d *Driver) speak(ctx context.Context, text string, audio *sync.WaitGroup) {
	if d.synth == nil || strings.TrimSpace(text) == "" {
		return
	}
	audio.Add(1)
	go func() {
		defer audio.Done()
		clip, err := d.synth.Synthesize(ctx, text)
		if err != nil {
			d.logger.Warn("speech synthesis failed", "error", err)
			return
		}
		if err := d.emitter.Emit(ctx, relay.Audio(clip, d.synth.Format())); err != nil {
			d.logger.Debug("chat.audio not delivered", "error", err)
		}
	}()
}

// persist saves the descriptor. Failures are logged and do not affect the turn.
func (d *Driver) persist(ctx context.Context) {
	if d.sessions == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := d.sessions.Save(saveCtx, d.channel, d.desc); err != nil {
		d.logger.Error("failed to save session", "error", err)
	}
}
