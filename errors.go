package goSession

import "errors"

var (
	// ErrPersistence wraps failures reading or writing the session store.
	ErrPersistence = errors.New("session persistence failed")
	// ErrNoActiveSession is returned by mutations attempted without a session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionExpired is returned by the gateway when the authority rejects
	// the credential mid-request. The session has already been cleared.
	ErrSessionExpired = errors.New("session expired")
	// ErrEmptyResponse is returned when a response body is empty.
	ErrEmptyResponse = errors.New("empty response body")
	// ErrUnexpectedContentType is returned when a response body is markup
	// instead of JSON, typically a proxy or captive-portal page.
	ErrUnexpectedContentType = errors.New("unexpected response content type")
	// ErrMalformedResponse is returned when a response body is not valid JSON
	// for the requested shape.
	ErrMalformedResponse = errors.New("malformed response body")
	// ErrNetwork wraps transport failures.
	ErrNetwork = errors.New("network error")

	// ErrInvalidSession is returned by Login for a session without a user id,
	// with an unknown role, or with an empty credential.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionChanged is returned by Refresh when the session was cleared or
	// replaced while the profile fetch was in flight; the result is dropped.
	ErrSessionChanged = errors.New("session changed during refresh")
	// ErrInvalidPushToken is returned by PushTokenRotated for an empty token.
	ErrInvalidPushToken = errors.New("invalid push token")
	// ErrNotConfigured is returned when an optional collaborator is missing.
	ErrNotConfigured = errors.New("collaborator not configured")
)
