// Package agent drives the conversational agent runtime.
//
// # Overview
//
// A Runtime accepts one Query at a time and streams Response events back on a
// channel. The channel always ends with exactly one terminal event, either
// EventDone or EventError, and is then closed.
//
// # Claude CLI
//
// ClaudeRuntime spawns the Claude CLI once per query:
//
//	claude --print --output-format stream-json --verbose \
//	    --permission-mode bypassPermissions [--resume <session>] \
//	    [--mcp-config <json> --allowedTools <names>]
//
// The query text is written to stdin. Each stdout line is decoded by
// ParseStreamLine. A process that exits without a result line yields an
// EventError carrying the exit status and the tail of stderr.
//
// # Sessions
//
// The runtime reports its session id on the init line and again on the
// result line. Passing that id back as Query.SessionID resumes the
// conversation.
//
// # Tools
//
// ToolAccess points the runtime at the gateway's tool bridge. AllowedTools
// expands bare tool names into the mcp__<server>__<tool> form the CLI expects.
package agent
