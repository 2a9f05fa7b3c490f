// Package session provides the session model and its durable on-device
// persistence: a three-key layout (snapshot, credential, login timestamp)
// written and cleared as one unit over a pluggable key-value backend.
//
// # Backends
//
//   - [RedisKV]: go-redis client; multi-key writes run inside MULTI/EXEC.
//   - [SQLiteKV]: modernc.org/sqlite file; multi-key writes run in one transaction.
//   - [MemoryKV]: process-local map for tests and ephemeral clients.
//
// # Snapshot encoding
//
// The snapshot is JSON with a schema version envelope. The credential is never
// part of the snapshot; it lives under its own key.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does NOT talk to
// the remote authority, hold in-memory session state, or decide when a session
// is valid. The Manager does.
//
// # What this package must NOT do
//
//   - Import goSession, gateway, or guard (no upward imports).
//   - Log or format a credential in full; use [Redact].
//   - Expose partial writes: [KV.Set] and [KV.Delete] are all-or-nothing.
package session
