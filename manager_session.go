package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/session"
)

// RecoverSession reconstructs the session persisted by a previous run and
// verifies its credential with the authority. It runs once; later calls
// return nil without doing anything.
//
// Any doubt about the persisted session ends unauthenticated with the store
// wiped: a partial layout, an undecodable snapshot, a rejected credential, or
// a verification call that could not complete. Those outcomes are not errors.
// Only a store read failure is returned, as ErrPersistence, and even then
// initialization completes.
//
// On success a profile refresh is started in the background; its failure
// is logged and does not affect the session.
func (m *Manager) RecoverSession(ctx context.Context) error {
	var err error
	m.recoverOnce.Do(func() {
		err = m.recoverSession(ctx)
	})
	return err
}

func (m *Manager) recoverSession(ctx context.Context) error {
	defer m.finishInit()

	m.stateMu.RLock()
	startGen := m.generation
	m.stateMu.RUnlock()

	res := m.flows.Recover(ctx)
	if res.ClearErr != nil {
		m.metricInc(MetricPersistenceFailure)
		m.logger.Error("clearing persisted session after failed recovery",
			slog.String("outcome", res.Outcome.String()),
			slog.Any("error", res.ClearErr),
		)
	}

	switch res.Outcome {
	case flows.RecoverEmpty:
		m.metricInc(MetricRecoverEmpty)
		m.logger.Debug("no persisted session")
		return nil

	case flows.RecoverLoadFailed:
		m.metricInc(MetricPersistenceFailure)
		m.logger.Error("reading persisted session", slog.Any("error", res.Err))
		m.emitAudit(ctx, auditEventRecoverFailure, false, nil, res.Err, nil)
		return fmt.Errorf("%w: %w", ErrPersistence, res.Err)

	case flows.RecoverCorrupt:
		m.metricInc(MetricRecoverCorrupt)
		m.logger.Warn("discarding corrupt persisted session", slog.Any("error", res.Err))
		m.emitAudit(ctx, auditEventRecoverFailure, false, nil, res.Err, func() map[string]string {
			return map[string]string{"outcome": res.Outcome.String()}
		})
		return nil

	case flows.RecoverRejected:
		m.metricInc(MetricRecoverRejected)
		m.logger.Info("persisted credential not accepted", slog.Any("error", res.Err))
		m.emitAudit(ctx, auditEventRecoverFailure, false, nil, res.Err, func() map[string]string {
			return map[string]string{"outcome": res.Outcome.String()}
		})
		return nil
	}

	// Verified. Drop the result if a login or logout committed meanwhile.
	m.commitMu.Lock()
	m.stateMu.RLock()
	moved := m.generation != startGen
	m.stateMu.RUnlock()
	if moved {
		m.commitMu.Unlock()
		m.logger.Info("session changed during recovery; keeping newer state")
		return nil
	}
	m.setSession(res.Session, true)
	m.commitMu.Unlock()

	m.metricInc(MetricRecoverVerified)
	m.logger.Info("session recovered",
		slog.String("user_id", res.Session.UserID),
		slog.String("role", string(res.Session.Role)),
		slog.String("credential", session.Redact(res.Credential)),
	)
	m.emitAudit(ctx, auditEventRecoverSuccess, true, res.Session, nil, nil)
	m.publish()

	m.goBackground(ctx, func(ctx context.Context) {
		if err := m.Refresh(ctx); err != nil {
			m.logger.Warn("profile refresh after recovery failed", slog.Any("error", err))
		}
	})
	return nil
}

// commitRecoverClear wipes the store after failed recovery unless a login
// has committed a new session in the meantime.
func (m *Manager) commitRecoverClear(ctx context.Context) error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	m.stateMu.RLock()
	active := m.sess != nil
	m.stateMu.RUnlock()
	if active {
		return nil
	}
	return m.store.Clear(ctx)
}

// Login establishes s as the current session with credential. The snapshot,
// credential and login time are persisted together before memory changes;
// on a store failure ErrPersistence is returned and the previous state is
// left as it was.
func (m *Manager) Login(ctx context.Context, s session.Session, credential string) error {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		m.metricInc(MetricLoginFailure)
		return fmt.Errorf("%w: empty credential", ErrInvalidSession)
	}
	sess := s.Clone()
	if err := sess.Validate(); err != nil {
		m.metricInc(MetricLoginFailure)
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	now := time.Now().UTC()
	sess.IssuedAt = now

	m.commitMu.Lock()
	if err := m.store.Save(ctx, sess, credential, now); err != nil {
		m.commitMu.Unlock()
		m.metricInc(MetricLoginFailure)
		m.metricInc(MetricPersistenceFailure)
		m.logger.Error("persisting login", slog.String("user_id", sess.UserID), slog.Any("error", err))
		m.emitAudit(ctx, auditEventLoginFailure, false, sess, err, nil)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	m.setSession(sess, true)
	m.commitMu.Unlock()

	m.metricInc(MetricLoginSuccess)
	m.logger.Info("logged in",
		slog.String("user_id", sess.UserID),
		slog.String("role", string(sess.Role)),
		slog.String("credential", session.Redact(credential)),
	)
	m.emitAudit(ctx, auditEventLoginSuccess, true, sess, nil, nil)
	m.publish()

	m.registerRememberedPushToken(ctx, credential)
	return nil
}

// Logout asks the authority to invalidate the credential, then clears the
// store and the in-memory session whatever the authority said. Calling it
// without a session is a no-op that still leaves everything cleared.
//
// A failure to clear the store is returned as ErrPersistence; memory is
// cleared regardless.
func (m *Manager) Logout(ctx context.Context) error {
	prev := m.Session()
	res := m.flows.Logout(ctx)

	if res.LoadErr != nil {
		m.logger.Warn("reading credential for logout", slog.Any("error", res.LoadErr))
	}
	if res.RemoteErr != nil {
		m.metricInc(MetricLogoutRemoteFailure)
		m.logger.Warn("remote logout failed", slog.Any("error", res.RemoteErr))
	}

	m.metricInc(MetricLogout)
	if res.ClearErr != nil {
		m.metricInc(MetricPersistenceFailure)
		m.logger.Error("clearing persisted session on logout", slog.Any("error", res.ClearErr))
		m.emitAudit(ctx, auditEventLogout, false, prev, res.ClearErr, nil)
		return fmt.Errorf("%w: %w", ErrPersistence, res.ClearErr)
	}

	m.logger.Info("logged out", slog.Bool("had_credential", res.HadCredential))
	m.emitAudit(ctx, auditEventLogout, true, prev, nil, func() map[string]string {
		if res.RemoteErr != nil {
			return map[string]string{"remote": "failed"}
		}
		return nil
	})
	return nil
}

// commitClear wipes the store and memory as one commit. Memory is cleared
// even when the store delete fails.
func (m *Manager) commitClear(ctx context.Context) error {
	m.commitMu.Lock()
	err := m.store.Clear(ctx)
	m.setSession(nil, true)
	m.commitMu.Unlock()

	m.publish()
	return err
}

// InvalidateCredential clears the session without contacting the authority.
// The gateway calls it when a request carrying credential was refused.
//
// When a credential is persisted and differs from credential, a newer
// login has replaced it and nothing is cleared. An empty credential means
// the request went out unauthenticated, so it only clears a store that
// still holds no credential.
func (m *Manager) InvalidateCredential(ctx context.Context, credential string) error {
	m.commitMu.Lock()
	current, ok, err := m.store.Credential(ctx)
	if err == nil && ok && current != credential {
		m.commitMu.Unlock()
		m.logger.Debug("ignoring authorization failure for a replaced credential",
			slog.String("credential", session.Redact(credential)),
		)
		return nil
	}

	prev := m.sess.Clone()
	err = m.store.Clear(ctx)
	m.setSession(nil, true)
	m.commitMu.Unlock()
	m.publish()

	m.metricInc(MetricSessionInvalidated)
	m.logger.Info("session invalidated by authorization failure",
		slog.String("credential", session.Redact(credential)),
	)
	m.emitAudit(ctx, auditEventSessionInvalidated, err == nil, prev, err, nil)
	if err != nil {
		m.metricInc(MetricPersistenceFailure)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// UpdateProfile merges patch into the current session, persists it, and
// publishes the result.
func (m *Manager) UpdateProfile(ctx context.Context, patch session.ProfilePatch) error {
	m.commitMu.Lock()
	if m.sess == nil {
		m.commitMu.Unlock()
		return ErrNoActiveSession
	}
	next, err := patch.Apply(m.sess)
	if err != nil {
		m.commitMu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if err := m.store.SaveSnapshot(ctx, next); err != nil {
		m.commitMu.Unlock()
		m.metricInc(MetricPersistenceFailure)
		m.logger.Error("persisting profile update", slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	m.setSession(next, false)
	m.commitMu.Unlock()

	m.metricInc(MetricProfileUpdated)
	m.emitAudit(ctx, auditEventProfileUpdated, true, next, nil, nil)
	m.publish()
	return nil
}

// UpdateDependents replaces the dependents list wholesale. Passing nil or an
// empty slice leaves the session with no dependents.
func (m *Manager) UpdateDependents(ctx context.Context, dependents []session.Dependent) error {
	m.commitMu.Lock()
	if m.sess == nil {
		m.commitMu.Unlock()
		return ErrNoActiveSession
	}
	next := m.sess.Clone()
	next.Dependents = make([]session.Dependent, len(dependents))
	copy(next.Dependents, dependents)

	if err := m.store.SaveSnapshot(ctx, next); err != nil {
		m.commitMu.Unlock()
		m.metricInc(MetricPersistenceFailure)
		m.logger.Error("persisting dependents update", slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	m.setSession(next, false)
	m.commitMu.Unlock()

	m.metricInc(MetricDependentsUpdated)
	m.emitAudit(ctx, auditEventDependentsUpdated, true, next, nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(len(next.Dependents))}
	})
	m.publish()
	return nil
}

// Credential returns the persisted credential. ok is false when none is
// stored.
func (m *Manager) Credential(ctx context.Context) (string, bool, error) {
	credential, ok, err := m.store.Credential(ctx)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return credential, ok, nil
}

// Refresh fetches the latest profile from the authority and merges it into
// the session it was started for. Authority and network errors are returned
// as-is and never clear the session. If the session was cleared or replaced
// while the fetch was in flight, the result is dropped and ErrSessionChanged
// is returned.
func (m *Manager) Refresh(ctx context.Context) error {
	res := m.flows.Refresh(ctx)

	switch res.Failure {
	case flows.RefreshFailureNone:
		m.metricInc(MetricRefreshSuccess)
		m.logger.Debug("profile refreshed")
		m.emitAudit(ctx, auditEventRefreshSuccess, true, m.Session(), nil, nil)
		return nil
	case flows.RefreshFailureNoSession:
		return ErrNoActiveSession
	case flows.RefreshFailureCredential:
		m.metricInc(MetricRefreshFailure)
		return fmt.Errorf("%w: %w", ErrPersistence, res.Err)
	case flows.RefreshFailureStale:
		m.metricInc(MetricRefreshDiscarded)
		m.logger.Info("discarding profile refresh for a replaced session")
		return ErrSessionChanged
	case flows.RefreshFailureFetch:
		m.metricInc(MetricRefreshFailure)
		m.emitAudit(ctx, auditEventRefreshFailure, false, m.Session(), res.Err, nil)
		return res.Err
	default:
		m.metricInc(MetricRefreshFailure)
		m.emitAudit(ctx, auditEventRefreshFailure, false, m.Session(), res.Err, nil)
		return res.Err
	}
}

func (m *Manager) commitRefresh(ctx context.Context, generation uint64, patch session.ProfilePatch) error {
	m.commitMu.Lock()
	if m.sess == nil || m.generation != generation {
		m.commitMu.Unlock()
		return flows.ErrStale
	}
	next, err := patch.Apply(m.sess)
	if err != nil {
		m.commitMu.Unlock()
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if err := m.store.SaveSnapshot(ctx, next); err != nil {
		m.commitMu.Unlock()
		m.metricInc(MetricPersistenceFailure)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	m.setSession(next, false)
	m.commitMu.Unlock()

	m.publish()
	return nil
}

func isPersistence(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, session.ErrStoreUnavailable)
}
