// Package guard decides whether a protected view may render for the current
// session state.
//
// # Decisions
//
//   - recovery still running → [Checking] (loading indicator only)
//   - no session → [Unauthorized], redirect to the sign-in route
//   - session of another role → [Unauthorized], redirect to that role's landing route
//   - otherwise → [Authorized]
//
// [Guard.Evaluate] is a pure function of goSession.State. [Watcher] keeps a
// decision current through Manager subscriptions, and [Middleware] applies a
// guard to web-rendered views.
//
// # What this package must NOT do
//
//   - Call the authority or read the store; state comes from the Manager.
//   - Render protected content before recovery has finished.
//   - Keep an Authorized verdict across a state change.
package guard
