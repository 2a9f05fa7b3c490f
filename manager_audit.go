package goSession

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/session"
)

const (
	auditEventRecoverSuccess     = "recover_success"
	auditEventRecoverFailure     = "recover_failure"
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLogout             = "logout"
	auditEventSessionInvalidated = "session_invalidated"
	auditEventProfileUpdated     = "profile_updated"
	auditEventDependentsUpdated  = "dependents_updated"
	auditEventRefreshSuccess     = "refresh_success"
	auditEventRefreshFailure     = "refresh_failure"
	auditEventPushRegistered     = "push_token_registered"
	auditEventPushFailure        = "push_token_failure"
)

// AuditErrorCode is the stable, credential-free error classification carried
// in [AuditEvent].Error.
type AuditErrorCode string

const (
	auditErrPersistence     AuditErrorCode = "persistence"
	auditErrNoSession       AuditErrorCode = "no_active_session"
	auditErrInvalidSession  AuditErrorCode = "invalid_session"
	auditErrExpired         AuditErrorCode = "session_expired"
	auditErrNetwork         AuditErrorCode = "network"
	auditErrMalformed       AuditErrorCode = "malformed_response"
	auditErrCorrupt         AuditErrorCode = "corrupt_snapshot"
	auditErrNotConfigured   AuditErrorCode = "not_configured"
	auditErrAuthorityDenied AuditErrorCode = "authority_denied"
)

func (m *Manager) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	sess *session.Session,
	err error,
	metadataBuilder func() map[string]string,
) {
	if m == nil || m.audit == nil {
		return
	}

	event := internalaudit.NewEvent(eventType)
	event.Success = success
	if sess != nil {
		event.UserID = sess.UserID
		event.Role = string(sess.Role)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}
	if metadataBuilder != nil {
		event.Metadata = metadataBuilder()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		if event.Metadata == nil {
			event.Metadata = make(map[string]string, 1)
		}
		event.Metadata["request_id"] = id
	}

	m.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, session.ErrSnapshotCorrupt):
		return auditErrCorrupt
	case isPersistence(err):
		return auditErrPersistence
	case errors.Is(err, ErrNoActiveSession):
		return auditErrNoSession
	case errors.Is(err, ErrInvalidSession),
		errors.Is(err, ErrInvalidPushToken),
		errors.Is(err, session.ErrInvalidRole):
		return auditErrInvalidSession
	case errors.Is(err, ErrSessionExpired):
		return auditErrExpired
	case errors.Is(err, ErrNetwork):
		return auditErrNetwork
	case errors.Is(err, ErrMalformedResponse),
		errors.Is(err, ErrEmptyResponse),
		errors.Is(err, ErrUnexpectedContentType):
		return auditErrMalformed
	case errors.Is(err, ErrNotConfigured):
		return auditErrNotConfigured
	default:
		return auditErrAuthorityDenied
	}
}
