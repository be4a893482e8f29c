// ABOUTME: Websocket handshake and per-connection lifecycle for /ws
// ABOUTME: Admits one connection per channel, then runs the multiplexer, tool binding, and turn driver

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/2389/larder-gateway/internal/agent"
	"github.com/2389/larder-gateway/internal/bridge"
	"github.com/2389/larder-gateway/internal/channel"
	"github.com/2389/larder-gateway/internal/conversation"
	"github.com/2389/larder-gateway/internal/relay"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	// pongWait must exceed pingInterval.
	pongWait = 2 * pingInterval
	// maxInboundBytes bounds one client frame.
	maxInboundBytes = 1 << 20
	closeGrace      = time.Second
)

// originChecker admits browser origins in allowed; "*" admits all.
// Requests without an Origin header are not from browsers and are admitted.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// handleWebSocket admits a connection for the channel query parameter.
// Rejections are delivered as a 1008 close frame after the upgrade, before
// any session store access.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel")
	release, claimErr := g.registry.Claim(channelID)

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written an HTTP error
		if release != nil {
			release()
		}
		g.logger.Warn("websocket upgrade failed", "channel", channelID, "error", err)
		return
	}

	if claimErr != nil {
		g.reject(conn, channelID, claimErr)
		return
	}
	defer release()

	g.conns.Add(1)
	defer g.conns.Done()

	g.serveConn(conn, channelID)
}

// reject closes conn with a policy-violation frame naming the reason.
func (g *Gateway) reject(conn *websocket.Conn, channelID string, cause error) {
	defer conn.Close()

	reason := "missing channel"
	if errors.Is(cause, channel.ErrChannelActive) {
		reason = "channel already active"
	}
	g.logger.Info("connection rejected", "channel", channelID, "reason", reason)

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil {
		g.logger.Debug("writing close frame failed", "error", err)
	}
}

// serveConn runs one admitted connection until the client leaves or the gateway shuts down.
func (g *Gateway) serveConn(conn *websocket.Conn, channelID string) {
	defer conn.Close()

	connID := uuid.NewString()
	logger := g.logger.With("channel", channelID, "connection", connID)

	ctx, cancel := context.WithCancel(g.connCtx)
	defer cancel()

	desc, resumed := g.sessions.Resolve(ctx, channelID, g.now())
	logger.Info("=== CHANNEL CLAIMED ===",
		"resumed", resumed,
		"session_id", desc.SessionID,
		"turns", desc.UserMessageCount,
	)

	mux := relay.New(conn, relay.Options{
		WriteTimeout: writeTimeout,
		PingInterval: pingInterval,
		Logger:       logger,
	})
	go func() {
		if err := mux.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("writer stopped", "error", err)
		}
		// a dead writer ends the connection
		cancel()
	}()
	defer func() {
		mux.Close()
		<-mux.Done()
	}()

	toolset := bridge.NewToolset(mux, bridge.ToolsetOptions{
		Meals:       g.meals,
		DefaultUser: g.config.Tools.Meals.DefaultUser,
		Logger:      logger,
	})
	_, unbind, err := g.bridge.Bind(connID, toolset)
	if err != nil {
		logger.Error("binding tools failed", "error", err)
		return
	}
	defer unbind()

	driver := conversation.NewDriver(conversation.Config{
		Channel:     channelID,
		Runtime:     g.runtime,
		Sessions:    g.sessions,
		Descriptor:  desc,
		Emitter:     mux,
		Synthesizer: g.synth,
		Tools: func() (*agent.ToolAccess, error) {
			return g.bridge.Access(connID)
		},
		Users:  toolset,
		Now:    g.now,
		Logger: logger,
	})

	inbound := make(chan []byte)
	go readPump(ctx, conn, inbound, cancel, logger)

	if err := driver.Run(ctx, inbound); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("driver stopped", "error", err)
	}

	final := driver.Descriptor()
	logger.Info("=== CHANNEL RELEASED ===",
		"session_id", final.SessionID,
		"turns", final.UserMessageCount,
	)
}

// readPump forwards text frames to out until the client disconnects. A read
// failure cancels the connection so an in-flight turn is abandoned.
func readPump(ctx context.Context, conn *websocket.Conn, out chan<- []byte, cancel context.CancelFunc, logger *slog.Logger) {
	defer close(out)
	defer cancel()

	conn.SetReadLimit(maxInboundBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Debug("client read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case out <- data:
		case <-ctx.Done():
			return
		}
	}
}
