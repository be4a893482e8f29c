// ABOUTME: End-to-end test of a tool call through the gateway's MCP SSE routes
// ABOUTME: A scripted runtime dials the bridge with its bearer token mid-turn

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/larder-gateway/internal/agent"
	"github.com/2389/larder-gateway/internal/relay"
	"github.com/2389/larder-gateway/internal/store"
)

const testPlotHTML = "<!DOCTYPE html><html><body><div id=\"p\"></div></body></html>"

// plotRuntime speaks, calls display_plot over the bridge, then speaks again.
type plotRuntime struct {
	access chan *agent.ToolAccess
}

func (r *plotRuntime) Submit(ctx context.Context, q *agent.Query) (<-chan *agent.Response, error) {
	r.access <- q.Tools

	out := make(chan *agent.Response)
	go func() {
		defer close(out)
		send := func(resp *agent.Response) bool {
			select {
			case out <- resp:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(&agent.Response{Event: agent.EventSessionInit, SessionID: "sess-plot"}) ||
			!send(&agent.Response{Event: agent.EventText, Text: "drawing it now", SessionID: "sess-plot"}) {
			return
		}
		// out is unbuffered: once this is received the driver has written the text
		if !send(&agent.Response{Event: agent.EventUsage}) {
			return
		}

		if err := callDisplayPlot(ctx, q.Tools); err != nil {
			send(&agent.Response{Event: agent.EventError, Error: err.Error()})
			return
		}

		if send(&agent.Response{Event: agent.EventText, Text: "there you go", SessionID: "sess-plot"}) {
			send(&agent.Response{Event: agent.EventDone, Done: true, SessionID: "sess-plot"})
		}
	}()
	return out, nil
}

func callDisplayPlot(ctx context.Context, access *agent.ToolAccess) error {
	if access == nil {
		return errors.New("no tool access for this turn")
	}

	c, err := client.NewSSEMCPClient(access.URL,
		transport.WithHeaders(map[string]string{"Authorization": "Bearer " + access.Token}),
	)
	if err != nil {
		return fmt.Errorf("creating mcp client: %w", err)
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("starting mcp client: %w", err)
	}

	var initReq mcp.InitializeRequest
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "plot-runtime", Version: "test"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initializing mcp session: %w", err)
	}

	var call mcp.CallToolRequest
	call.Params.Name = "display_plot"
	call.Params.Arguments = map[string]any{"html": testPlotHTML}
	res, err := c.CallTool(ctx, call)
	if err != nil {
		return fmt.Errorf("calling display_plot: %w", err)
	}
	if res.IsError {
		return fmt.Errorf("display_plot failed: %v", res.Content)
	}
	return nil
}

func TestToolCallThroughBridge(t *testing.T) {
	// the bridge URL handed to the runtime must point at the live listener
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := testConfig(t)
	cfg.Server.PublicURL = "http://" + ln.Addr().String()

	rt := &plotRuntime{access: make(chan *agent.ToolAccess, 1)}
	backend := store.NewMockStore()
	gw, err := New(cfg, testLogger(), WithStore(backend), WithRuntime(rt))
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(gw.Handler())
	_ = srv.Listener.Close()
	srv.Listener = ln
	srv.Start()

	h := &harness{gw: gw, srv: srv, store: backend}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
		srv.Close()
	})

	conn := h.dial(t, "?channel=kitchen")
	sendChat(t, conn, "plot my week")

	events := readUntilDone(t, conn)
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	require.Equal(t, []string{relay.TypeMessage, relay.TypePlot, relay.TypeMessage, relay.TypeDone}, types)

	plot, ok := events[1].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, testPlotHTML, plot["html"])

	access := <-rt.access
	require.NotNil(t, access)
	assert.Equal(t, cfg.Server.PublicURL+"/mcp/sse", access.URL)
	assert.Contains(t, access.AllowedTools(), "mcp__larder__display_plot")

	stored, err := backend.GetSession(context.Background(), "kitchen")
	require.NoError(t, err)
	assert.Equal(t, "sess-plot", stored.SessionID)
	assert.Equal(t, 1, stored.UserMessageCount)
}

func TestBridgeRejectsUnknownToken(t *testing.T) {
	h := newHarness(t, time.Now())

	c, err := client.NewSSEMCPClient(h.srv.URL+"/mcp/sse",
		transport.WithHeaders(map[string]string{"Authorization": "Bearer not-a-token"}),
	)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, c.Start(ctx))
}
