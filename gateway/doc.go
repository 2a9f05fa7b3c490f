// Package gateway is the single path by which authenticated API calls leave
// the device. It attaches the current credential, reports authorization
// failures back to the session Manager, and parses response bodies strictly.
//
// # Error mapping
//
//   - transport failure → goSession.ErrNetwork (wrapping the cause)
//   - HTTP 401 → the Manager clears the session, then goSession.ErrSessionExpired
//   - any other status → returned as a [Response]; the caller decides
//
// Nothing is retried and nothing is navigated to.
//
// # Architecture boundaries
//
// The gateway reads the credential through [Session] and never touches the
// store. It does not know about roles, views or redirects.
//
// # What this package must NOT do
//
//   - Send the credential to a host other than the configured base URL.
//   - Retry a request after a 401.
//   - Log a credential unredacted.
package gateway
