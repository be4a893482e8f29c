// ABOUTME: Runtime interface for submitting a query to a conversational agent runtime
// ABOUTME: Also describes the tool endpoint a runtime may call back into mid-query

package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// Runtime submits queries to an agent runtime and streams its response events.
//
// The returned channel yields events in the runtime's own order and is closed
// after the terminal EventDone or EventError. Canceling ctx aborts the query.
type Runtime interface {
	Submit(ctx context.Context, q *Query) (<-chan *Response, error)
}

// Query is one request to the runtime.
type Query struct {
	Text string
	// SessionID resumes a prior runtime session; empty starts a new one.
	SessionID string
	Tools     *ToolAccess
}

// ToolAccess tells the runtime where the per-connection tool bridge lives.
type ToolAccess struct {
	ServerName string
	URL        string
	Token      string
	Tools      []string
}

// AllowedTools returns the fully qualified tool names the runtime may call.
func (t *ToolAccess) AllowedTools() []string {
	names := make([]string, 0, len(t.Tools))
	for _, tool := range t.Tools {
		names = append(names, fmt.Sprintf("mcp__%s__%s", t.ServerName, tool))
	}
	return names
}

type mcpServerConfig struct {
	Type    string            `json:"type"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// MCPConfig renders the mcpServers document pointing the runtime at the bridge.
func (t *ToolAccess) MCPConfig() ([]byte, error) {
	srv := mcpServerConfig{Type: "sse", URL: t.URL}
	if t.Token != "" {
		srv.Headers = map[string]string{"Authorization": "Bearer " + t.Token}
	}
	doc := map[string]map[string]mcpServerConfig{
		"mcpServers": {t.ServerName: srv},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding mcp config: %w", err)
	}
	return data, nil
}
