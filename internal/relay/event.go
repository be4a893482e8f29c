// ABOUTME: Outbound event envelope and constructors for every client-visible event type
// ABOUTME: Each event is serialized as {"type": ..., "payload": {...}}

package relay

import (
	"context"
	"encoding/base64"
)

// Outbound event types.
const (
	TypeMessage = "chat.message"
	TypePlot    = "chat.plot"
	TypeRefresh = "data.refresh"
	TypeAudio   = "chat.audio"
	TypeDone    = "chat.done"
)

// Event is one outbound message to the client.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// MessagePayload carries one assistant text chunk.
type MessagePayload struct {
	Content string `json:"content"`
}

// PlotPayload carries a self-contained HTML document to render.
type PlotPayload struct {
	HTML string `json:"html"`
}

// AudioPayload carries synthesized speech for one text chunk.
type AudioPayload struct {
	Audio  string `json:"audio"` // base64
	Format string `json:"format"`
}

type emptyPayload struct{}

// TextChunk builds a chat.message event.
func TextChunk(content string) Event {
	return Event{Type: TypeMessage, Payload: MessagePayload{Content: content}}
}

// Plot builds a chat.plot event.
func Plot(html string) Event {
	return Event{Type: TypePlot, Payload: PlotPayload{HTML: html}}
}

// Refresh builds a data.refresh event.
func Refresh() Event {
	return Event{Type: TypeRefresh, Payload: emptyPayload{}}
}

// Audio builds a chat.audio event from raw audio bytes.
func Audio(data []byte, format string) Event {
	return Event{Type: TypeAudio, Payload: AudioPayload{
		Audio:  base64.StdEncoding.EncodeToString(data),
		Format: format,
	}}
}

// Done builds the chat.done turn sentinel.
func Done() Event {
	return Event{Type: TypeDone, Payload: emptyPayload{}}
}

// Emitter accepts events for one client connection.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
