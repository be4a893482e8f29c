// Package bridge lets the agent runtime act on the browser connection that
// started its turn.
//
// One MCP server, served over mcp-go's SSE transport at /mcp/sse and
// /mcp/message, hosts every tool. Each websocket connection binds a Toolset
// under its connection id and hands the runtime a bearer token for that id.
// When the runtime calls a tool, the token resolves to the Toolset and the
// tool's effect (a chat.plot or data.refresh event, or a meal insert) lands on
// that connection's event stream.
//
// Unbinding at disconnect leaves the token valid but pointing at nothing, so
// late calls get an MCP error result instead of reaching another socket.
package bridge
