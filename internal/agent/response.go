// ABOUTME: Response events produced by an agent runtime while it answers one query
// ABOUTME: A stream ends with exactly one EventDone or EventError, then the channel closes

package agent

// Response represents a response event from the agent runtime.
type Response struct {
	Event      ResponseEvent
	Text       string
	ToolUse    *ToolUseEvent
	ToolResult *ToolResultEvent
	Usage      *UsageEvent
	Error      string
	Done       bool
	SessionID  string // set on EventSessionInit and usually on EventDone
}

// ResponseEvent indicates the type of response event.
type ResponseEvent int

const (
	EventThinking ResponseEvent = iota
	EventText
	EventToolUse
	EventToolResult
	EventDone
	EventError
	EventSessionInit
	EventUsage
)

func (e ResponseEvent) String() string {
	switch e {
	case EventThinking:
		return "thinking"
	case EventText:
		return "text"
	case EventToolUse:
		return "tool_use"
	case EventToolResult:
		return "tool_result"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	case EventSessionInit:
		return "session_init"
	case EventUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Terminal reports whether r ends its stream.
func (r *Response) Terminal() bool {
	return r.Event == EventDone || r.Event == EventError
}

// ToolUseEvent represents a tool invocation by the agent.
type ToolUseEvent struct {
	ID        string
	Name      string
	InputJSON string
}

// ToolResultEvent represents the result of a tool invocation.
type ToolResultEvent struct {
	ID      string
	Output  string
	IsError bool
}

// UsageEvent represents token consumption for one query.
type UsageEvent struct {
	InputTokens      int64
	OutputTokens     int64
	CacheReadTokens  int64
	CacheWriteTokens int64
	CostUSD          float64
}
