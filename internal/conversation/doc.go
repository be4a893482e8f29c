// Package conversation runs the chat turns for one connection.
//
// # Frames
//
// ParseInbound validates a client frame against a small JSON Schema. Only
// frames of type "chat" with non-empty content start a turn; anything else is
// logged and skipped.
//
// # Turns
//
// Driver.Run reads frames one at a time, so turns never overlap. Each turn:
//
//  1. submits the query, resuming the descriptor's session id if it has one;
//  2. forwards every text chunk as chat.message (and, with a Synthesizer,
//     a chat.audio event per chunk once synthesis finishes);
//  3. emits exactly one chat.done;
//  4. on success, records the turn on the descriptor and saves it before the
//     next frame is read.
//
// A failed turn still ends with chat.done but leaves the descriptor and its
// stored record untouched.
package conversation
