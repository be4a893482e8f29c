// ABOUTME: Event multiplexer owning the single writer for one websocket connection
// ABOUTME: Emit blocks until its event is written, so events leave in call order

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Emit once the multiplexer has stopped writing.
var ErrClosed = errors.New("multiplexer closed")

// Conn is the subset of *websocket.Conn the multiplexer writes to.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v any) error
	WriteMessage(messageType int, data []byte) error
}

// Options configures a Multiplexer.
type Options struct {
	// WriteTimeout bounds each frame write. Defaults to 10s.
	WriteTimeout time.Duration
	// PingInterval is the keepalive period; zero disables pings.
	PingInterval time.Duration
	Logger       *slog.Logger
}

type outbound struct {
	ev     Event
	result chan error
}

// Multiplexer serializes events from the turn driver and the tool bridge onto
// one connection. A single goroutine (Run) performs every write.
type Multiplexer struct {
	conn         Conn
	queue        chan *outbound
	closing      chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *slog.Logger

	mu  sync.Mutex
	err error
}

// New creates a Multiplexer. Run must be started before events can be emitted.
func New(conn Conn, opts Options) *Multiplexer {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Multiplexer{
		conn:         conn,
		queue:        make(chan *outbound),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
		logger:       opts.Logger.With("component", "relay"),
	}
}

// Run writes queued events until ctx is canceled, Close is called, or a write
// fails. On Close it sends a normal-closure frame before returning.
func (m *Multiplexer) Run(ctx context.Context) error {
	defer close(m.done)

	var tick <-chan time.Time
	if m.pingInterval > 0 {
		ticker := time.NewTicker(m.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case ob := <-m.queue:
			err := m.write(ob.ev)
			ob.result <- err
			if err != nil {
				m.setErr(err)
				return err
			}

		case <-tick:
			_ = m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
			if err := m.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				err = fmt.Errorf("writing ping: %w", err)
				m.setErr(err)
				return err
			}

		case <-m.closing:
			_ = m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout))
			_ = m.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			m.setErr(ErrClosed)
			return nil

		case <-ctx.Done():
			m.setErr(ErrClosed)
			return ctx.Err()
		}
	}
}

func (m *Multiplexer) write(ev Event) error {
	if err := m.conn.SetWriteDeadline(time.Now().Add(m.writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := m.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("writing %s: %w", ev.Type, err)
	}
	m.logger.Debug("event sent", "type", ev.Type)
	return nil
}

func (m *Multiplexer) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil {
		m.err = err
	}
}

// Err returns the reason the writer stopped, or nil while it is running.
func (m *Multiplexer) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Emit hands ev to the writer and waits until it has been written.
func (m *Multiplexer) Emit(ctx context.Context, ev Event) error {
	ob := &outbound{ev: ev, result: make(chan error, 1)}

	select {
	case m.queue <- ob:
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once accepted the writer always reports a result before exiting.
	return <-ob.result
}

// Close asks the writer to send a close frame and stop. Safe to call repeatedly.
func (m *Multiplexer) Close() {
	m.closeOnce.Do(func() { close(m.closing) })
}

// Done is closed when the writer has stopped.
func (m *Multiplexer) Done() <-chan struct{} {
	return m.done
}
