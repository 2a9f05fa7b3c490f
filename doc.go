// Package goSession manages the authenticated session of a childcare client
// device: establishing, persisting, verifying, refreshing and tearing down the
// login bound to an opaque bearer credential issued by a remote authority.
//
// Manager methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. A process should hold exactly one
// Manager per device store and pass it by reference to the gateway, the guard
// and any view code.
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Manager], [Builder], [Config],
// [State] and the metrics and audit value types. Flow orchestration, audit
// dispatch and counters live under internal/ and are never exported.
// Persistence is in the session package; the gateway, guard and authority
// packages import goSession, never the reverse.
//
// # What this package must NOT do
//
//   - Read or write the persisted keys from anywhere but the Manager.
//   - Hold the commit lock across a network call.
//   - Log a credential unredacted.
//   - Import any sub-package that re-imports goSession (no import cycles).
//
// # Failure contract
//
// Recovery fails closed: any doubt about the persisted session ends in an
// unauthenticated state with the store wiped. Profile refresh fails open: its
// errors are reported but never clear the session. Logout always clears local
// state, whatever the authority answers.
package goSession
