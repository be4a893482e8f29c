// Package gateway hosts the larder-gateway HTTP server.
//
// # Overview
//
// The Gateway owns the process-wide pieces: the session store, the channel
// registry, the tool bridge, and the optional side services (speech synthesis,
// realtime token minting, meal logging). Each admitted websocket connection
// gets its own multiplexer, toolset, and turn driver.
//
// # Routes
//
//   - GET /ws?channel=<id> - websocket chat for one channel
//   - GET /health - liveness check
//   - GET /health/ready - active channels and bound toolsets
//   - POST /api/realtime-session - mint a transcription client secret
//   - GET /mcp/sse, POST /mcp/message - tool bridge for the agent runtime
//
// # Admission
//
// A connection without a channel, or for a channel that already has a live
// connection, is upgraded and immediately closed with code 1008 and the reason
// "missing channel" or "channel already active". Neither path touches the
// session store.
//
// # Connection Lifecycle
//
// An admitted connection resolves its session descriptor, starts the writer,
// binds a toolset to the bridge, and runs the driver over inbound frames. When
// the client leaves, the connection context is canceled, which kills any running
// runtime process. Then the toolset is unbound, the writer is closed, and the
// channel is released.
//
// # Listeners
//
// The router is served on server.http_addr and, when tailscale is enabled, on a
// tsnet listener (plain HTTP, tailnet HTTPS, or Funnel).
package gateway
