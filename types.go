package goSession

import (
	"context"
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/session"
)

// State is what the Manager exposes to observers: the current session (a
// private copy, nil when unauthenticated) and whether startup recovery is
// still running.
type State struct {
	Session      *session.Session
	Initializing bool
}

// Authenticated reports whether a session is present.
func (s State) Authenticated() bool {
	return s.Session != nil
}

// Authority is the remote session authority the Manager consumes. Every call
// carries the credential explicitly; the Manager decides which one.
//
//	Implemented by authority.Client.
type Authority interface {
	VerifyToken(ctx context.Context, credential string) error
	Logout(ctx context.Context, credential string) error
	FetchProfile(ctx context.Context, credential string) (session.ProfilePatch, error)
}

// PushRegistrar registers a device push token with the backend for the
// session that owns credential. Delivery of notifications is out of scope.
type PushRegistrar interface {
	RegisterPushToken(ctx context.Context, credential, pushToken string) error
}

// AuditEvent is a structured audit record emitted by the Manager.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the Manager's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that mirrors events into a [slog.Logger].
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink].
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess        = MetricID(internalmetrics.MetricLoginSuccess)
	MetricLoginFailure        = MetricID(internalmetrics.MetricLoginFailure)
	MetricRecoverEmpty        = MetricID(internalmetrics.MetricRecoverEmpty)
	MetricRecoverVerified     = MetricID(internalmetrics.MetricRecoverVerified)
	MetricRecoverRejected     = MetricID(internalmetrics.MetricRecoverRejected)
	MetricRecoverCorrupt      = MetricID(internalmetrics.MetricRecoverCorrupt)
	MetricLogout              = MetricID(internalmetrics.MetricLogout)
	MetricLogoutRemoteFailure = MetricID(internalmetrics.MetricLogoutRemoteFailure)
	MetricSessionInvalidated  = MetricID(internalmetrics.MetricSessionInvalidated)
	MetricRefreshSuccess      = MetricID(internalmetrics.MetricRefreshSuccess)
	MetricRefreshFailure      = MetricID(internalmetrics.MetricRefreshFailure)
	MetricRefreshDiscarded    = MetricID(internalmetrics.MetricRefreshDiscarded)
	MetricProfileUpdated      = MetricID(internalmetrics.MetricProfileUpdated)
	MetricDependentsUpdated   = MetricID(internalmetrics.MetricDependentsUpdated)
	MetricPersistenceFailure  = MetricID(internalmetrics.MetricPersistenceFailure)
	MetricPushRegistered      = MetricID(internalmetrics.MetricPushRegistered)
	MetricPushRegisterFailure = MetricID(internalmetrics.MetricPushRegisterFailure)
	MetricGatewayRequest      = MetricID(internalmetrics.MetricGatewayRequest)
	MetricGatewayUnauthorized = MetricID(internalmetrics.MetricGatewayUnauthorized)
	MetricGatewayNetworkError = MetricID(internalmetrics.MetricGatewayNetworkError)
	// MetricAuthorityLatency is the only histogram: latency of authority calls.
	MetricAuthorityLatency = MetricID(internalmetrics.MetricAuthorityLatency)
)

// Metrics is the in-process counter set owned by a Manager.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance configured by cfg. When Enabled is
// false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
