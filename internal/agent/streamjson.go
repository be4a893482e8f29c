// ABOUTME: Parser for Claude CLI stream-json output lines
// ABOUTME: Maps system/assistant/user/result envelopes onto Response events

package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// streamEnvelope is the common shape of every stream-json line.
type streamEnvelope struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

type streamMessage struct {
	Content []contentBlock `json:"content"`
}

type resultLine struct {
	Subtype      string  `json:"subtype"`
	IsError      bool    `json:"is_error"`
	Result       string  `json:"result"`
	SessionID    string  `json:"session_id"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Usage        struct {
		InputTokens      int64 `json:"input_tokens"`
		OutputTokens     int64 `json:"output_tokens"`
		CacheReadTokens  int64 `json:"cache_read_input_tokens"`
		CacheWriteTokens int64 `json:"cache_creation_input_tokens"`
	} `json:"usage"`
}

// ParseStreamLine converts one stream-json line into zero or more responses.
// Unknown envelope types yield no responses and no error.
func ParseStreamLine(line []byte) ([]*Response, error) {
	var env streamEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("parsing stream-json envelope: %w", err)
	}

	switch env.Type {
	case "system":
		if env.Subtype == "init" && env.SessionID != "" {
			return []*Response{{Event: EventSessionInit, SessionID: env.SessionID}}, nil
		}
		return nil, nil

	case "assistant":
		return parseAssistant(env)

	case "user":
		return parseToolResults(env)

	case "result":
		return parseResult(line)

	default:
		return nil, nil
	}
}

func parseAssistant(env streamEnvelope) ([]*Response, error) {
	var msg streamMessage
	if len(env.Message) > 0 {
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return nil, fmt.Errorf("parsing assistant message: %w", err)
		}
	}

	var out []*Response
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text == "" {
				continue
			}
			out = append(out, &Response{Event: EventText, Text: block.Text, SessionID: env.SessionID})
		case "thinking":
			out = append(out, &Response{Event: EventThinking, Text: block.Thinking, SessionID: env.SessionID})
		case "tool_use":
			out = append(out, &Response{
				Event:     EventToolUse,
				SessionID: env.SessionID,
				ToolUse: &ToolUseEvent{
					ID:        block.ID,
					Name:      block.Name,
					InputJSON: string(block.Input),
				},
			})
		}
	}
	return out, nil
}

func parseToolResults(env streamEnvelope) ([]*Response, error) {
	var msg streamMessage
	if len(env.Message) == 0 {
		return nil, nil
	}
	// user messages may carry a plain string body; only block arrays hold tool results
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return nil, nil
	}

	var out []*Response
	for _, block := range msg.Content {
		if block.Type != "tool_result" {
			continue
		}
		out = append(out, &Response{
			Event:     EventToolResult,
			SessionID: env.SessionID,
			ToolResult: &ToolResultEvent{
				ID:      block.ToolUseID,
				Output:  flattenToolContent(block.Content),
				IsError: block.IsError,
			},
		})
	}
	return out, nil
}

// flattenToolContent accepts either a JSON string or an array of text blocks.
func flattenToolContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var blocks []contentBlock
	if json.Unmarshal(raw, &blocks) != nil {
		return string(raw)
	}
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func parseResult(line []byte) ([]*Response, error) {
	var res resultLine
	if err := json.Unmarshal(line, &res); err != nil {
		return nil, fmt.Errorf("parsing result: %w", err)
	}

	usage := &Response{
		Event:     EventUsage,
		SessionID: res.SessionID,
		Usage: &UsageEvent{
			InputTokens:      res.Usage.InputTokens,
			OutputTokens:     res.Usage.OutputTokens,
			CacheReadTokens:  res.Usage.CacheReadTokens,
			CacheWriteTokens: res.Usage.CacheWriteTokens,
			CostUSD:          res.TotalCostUSD,
		},
	}

	if res.IsError || strings.HasPrefix(res.Subtype, "error") {
		msg := res.Result
		if msg == "" {
			msg = res.Subtype
		}
		return []*Response{usage, {Event: EventError, Error: msg, SessionID: res.SessionID}}, nil
	}

	return []*Response{usage, {Event: EventDone, Done: true, Text: res.Result, SessionID: res.SessionID}}, nil
}
