// ABOUTME: JSON encoding and schema validation for persisted session records
// ABOUTME: Both backends store the same document so records can move between them

package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

const recordSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["last_message_time", "user_message_count"],
	"properties": {
		"session_id": {"type": ["string", "null"]},
		"last_message_time": {"type": "string", "minLength": 1},
		"user_message_count": {"type": "integer", "minimum": 0}
	}
}`

var recordSchemaLoader = gojsonschema.NewStringLoader(recordSchema)

// record is the on-disk shape of a Session.
type record struct {
	SessionID        *string `json:"session_id"`
	LastMessageTime  string  `json:"last_message_time"`
	UserMessageCount int     `json:"user_message_count"`
}

func encodeRecord(s *Session) ([]byte, error) {
	rec := record{
		LastMessageTime:  s.LastMessageTime.UTC().Format(time.RFC3339Nano),
		UserMessageCount: s.UserMessageCount,
	}
	if s.SessionID != "" {
		id := s.SessionID
		rec.SessionID = &id
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding session record: %w", err)
	}
	return data, nil
}

// decodeRecord validates data against the record schema before decoding it.
// Any failure is reported as ErrCorruptRecord.
func decodeRecord(data []byte) (*Session, error) {
	result, err := gojsonschema.Validate(recordSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrCorruptRecord, strings.Join(msgs, "; "))
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	ts, err := time.Parse(time.RFC3339Nano, rec.LastMessageTime)
	if err != nil {
		return nil, fmt.Errorf("%w: last_message_time: %v", ErrCorruptRecord, err)
	}

	s := &Session{
		LastMessageTime:  ts,
		UserMessageCount: rec.UserMessageCount,
	}
	if rec.SessionID != nil {
		s.SessionID = *rec.SessionID
	}
	return s, nil
}
