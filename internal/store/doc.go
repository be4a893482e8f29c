// Package store provides durable per-channel session bookkeeping for the gateway.
//
// # Architecture
//
// SessionStore is a small key-value contract keyed by channel identifier:
//
//   - GetSession: point lookup, ErrNotFound when absent, ErrCorruptRecord when unusable
//   - SaveSession: overwrite with last-write-wins semantics
//   - DeleteSession / ListSessions: used by the CLI
//
// Three implementations are provided:
//
//   - SQLiteStore: modernc.org/sqlite in WAL mode, one row per channel
//   - FileStore: one JSON file per channel, flock-guarded temp-file rename
//   - MockStore: in-memory, with injectable errors for tests
//
// # Record Format
//
// Both durable backends store the same JSON document:
//
//	{"session_id": "…" | null, "last_message_time": "RFC3339Nano", "user_message_count": 3}
//
// Documents are validated against a JSON Schema on every read.
//
// # Concurrency
//
// Stores assume a single writer per channel, which the channel registry
// guarantees within one process. Multi-process access is not supported.
package store
