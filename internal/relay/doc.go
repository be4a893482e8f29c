// Package relay forwards ordered events to one connected client.
//
// A Multiplexer owns the write side of a websocket. Its Run loop is the only
// goroutine that writes to the connection; Emit queues an event and waits
// until it has been written, so events reach the client in exactly the order
// Emit calls complete. The turn driver and the tool bridge both emit through
// the same Multiplexer, so their events interleave in arrival order.
//
// Wire format:
//
//	{"type": "chat.message", "payload": {"content": "..."}}
//	{"type": "chat.plot",    "payload": {"html": "..."}}
//	{"type": "data.refresh", "payload": {}}
//	{"type": "chat.audio",   "payload": {"audio": "<base64>", "format": "mp3"}}
//	{"type": "chat.done",    "payload": {}}
package relay
