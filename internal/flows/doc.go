// Package flows contains pure-function orchestrators for the Manager's
// multi-step operations: startup recovery, logout, and profile refresh.
//
// Each flow function (RunRecover, RunLogout, RunRefresh) accepts a typed
// dependency struct and returns a result value without side-effects beyond
// those dependencies. Recovery fails closed, remote logout is best effort,
// and a refresh result is dropped when the session it started from is gone.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session store, the remote authority
// and the Manager's commit callbacks. They do NOT own any of these resources,
// and they never touch in-memory session state, which stays with the
// Manager.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through dependency functions.
package flows
