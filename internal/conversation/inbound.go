// ABOUTME: Inbound websocket frame parsing and validation
// ABOUTME: Frames are checked against a JSON Schema before any turn is started

package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// TypeChat is the only inbound frame type that starts a turn.
const TypeChat = "chat"

// DefaultUser names the speaker when a frame carries no user.
const DefaultUser = "unknown"

// ErrMalformed is returned for frames that are not valid JSON or fail validation.
var ErrMalformed = errors.New("malformed inbound frame")

var inboundSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type":    {"type": "string"},
		"content": {"type": "string"},
		"user":    {"type": ["string", "null"]}
	}
}`)

// Inbound is one client-to-gateway frame.
type Inbound struct {
	Type    string  `json:"type"`
	Content string  `json:"content"`
	User    *string `json:"user,omitempty"`
}

// ParseInbound decodes and validates one frame.
func ParseInbound(data []byte) (*Inbound, error) {
	result, err := gojsonschema.Validate(inboundSchema, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrMalformed, strings.Join(msgs, "; "))
	}

	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &msg, nil
}

// hasUser reports whether the frame names a speaker.
func (m *Inbound) hasUser() bool {
	return m.User != nil && *m.User != ""
}

// UserName returns the speaker, or DefaultUser.
func (m *Inbound) UserName() string {
	if m.hasUser() {
		return *m.User
	}
	return DefaultUser
}

// Query returns the text submitted to the runtime. A named speaker is
// prefixed as "[User: <name>] ".
func (m *Inbound) Query() string {
	if m.hasUser() {
		return fmt.Sprintf("[User: %s] %s", *m.User, m.Content)
	}
	return m.Content
}
