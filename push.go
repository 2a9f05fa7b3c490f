package goSession

import (
	"context"
	"log/slog"
	"strings"
)

// PushTokenRotated is the subscription end of device push-token rotation.
// The latest token is remembered; when a session is active it is registered
// immediately with the configured [PushRegistrar], otherwise on the next
// successful Login.
//
// Returns ErrNotConfigured when no registrar was supplied to the Builder.
// The token is still remembered in that case.
func (m *Manager) PushTokenRotated(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidPushToken
	}

	m.pushMu.Lock()
	m.pushToken = token
	m.pushMu.Unlock()

	if m.push == nil {
		return ErrNotConfigured
	}
	if m.Session() == nil {
		return nil
	}

	credential, ok, err := m.Credential(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return m.registerPushToken(ctx, credential, token)
}

func (m *Manager) registerPushToken(ctx context.Context, credential, token string) error {
	if err := m.push.RegisterPushToken(ctx, credential, token); err != nil {
		m.metricInc(MetricPushRegisterFailure)
		m.logger.Warn("registering push token", slog.Any("error", err))
		m.emitAudit(ctx, auditEventPushFailure, false, m.Session(), err, nil)
		return err
	}
	m.metricInc(MetricPushRegistered)
	m.emitAudit(ctx, auditEventPushRegistered, true, m.Session(), nil, nil)
	return nil
}

// registerRememberedPushToken binds the last rotated token to a freshly
// established session. Runs in the background; failures are only logged.
func (m *Manager) registerRememberedPushToken(ctx context.Context, credential string) {
	if m.push == nil {
		return
	}
	m.pushMu.Lock()
	token := m.pushToken
	m.pushMu.Unlock()
	if token == "" {
		return
	}

	m.goBackground(ctx, func(ctx context.Context) {
		_ = m.registerPushToken(ctx, credential, token)
	})
}
