// Package authority is the HTTP client for the remote session authority:
// credential verification, remote logout and profile lookup.
//
// Every call carries the credential explicitly. The client has no session
// state of its own and never clears anything; deciding what a rejection
// means is the Manager's job.
//
// Sub-package authoritytest provides an in-process fake authority for tests
// and demos.
package authority
