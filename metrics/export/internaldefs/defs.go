package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef binds a counter slot to its exported name. Operation and
// Outcome label the slot for exporters that group counters by operation.
type CounterDef struct {
	ID        goSession.MetricID
	Name      string
	Help      string
	Operation string
	Outcome   string
}

// HistogramDef binds a histogram slot to its exported name.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Sessions established by login.", Operation: "login", Outcome: "success"},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Rejected or unpersisted logins.", Operation: "login", Outcome: "failure"},
	{ID: goSession.MetricRecoverEmpty, Name: "gosession_recover_empty_total", Help: "Startup recoveries that found no persisted session.", Operation: "recover", Outcome: "empty"},
	{ID: goSession.MetricRecoverVerified, Name: "gosession_recover_verified_total", Help: "Startup recoveries confirmed by the authority.", Operation: "recover", Outcome: "verified"},
	{ID: goSession.MetricRecoverRejected, Name: "gosession_recover_rejected_total", Help: "Startup recoveries rejected or unreachable.", Operation: "recover", Outcome: "rejected"},
	{ID: goSession.MetricRecoverCorrupt, Name: "gosession_recover_corrupt_total", Help: "Startup recoveries that found unreadable persisted data.", Operation: "recover", Outcome: "corrupt"},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logout operations.", Operation: "logout", Outcome: "completed"},
	{ID: goSession.MetricLogoutRemoteFailure, Name: "gosession_logout_remote_failure_total", Help: "Logouts whose remote notification failed.", Operation: "logout", Outcome: "remote_failure"},
	{ID: goSession.MetricSessionInvalidated, Name: "gosession_session_invalidated_total", Help: "Sessions cleared after an unauthorized response.", Operation: "invalidate", Outcome: "unauthorized"},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Profile refreshes applied.", Operation: "refresh", Outcome: "success"},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Profile refreshes that failed.", Operation: "refresh", Outcome: "failure"},
	{ID: goSession.MetricRefreshDiscarded, Name: "gosession_refresh_discarded_total", Help: "Profile refreshes dropped because the session changed.", Operation: "refresh", Outcome: "discarded"},
	{ID: goSession.MetricProfileUpdated, Name: "gosession_profile_updated_total", Help: "Local profile updates.", Operation: "update", Outcome: "profile"},
	{ID: goSession.MetricDependentsUpdated, Name: "gosession_dependents_updated_total", Help: "Dependent list replacements.", Operation: "update", Outcome: "dependents"},
	{ID: goSession.MetricPersistenceFailure, Name: "gosession_persistence_failure_total", Help: "Durable store writes or reads that failed.", Operation: "persist", Outcome: "failure"},
	{ID: goSession.MetricPushRegistered, Name: "gosession_push_registered_total", Help: "Push tokens registered with the backend.", Operation: "push_register", Outcome: "success"},
	{ID: goSession.MetricPushRegisterFailure, Name: "gosession_push_register_failure_total", Help: "Push token registrations that failed.", Operation: "push_register", Outcome: "failure"},
	{ID: goSession.MetricGatewayRequest, Name: "gosession_gateway_request_total", Help: "Requests sent through the authorization gateway.", Operation: "gateway", Outcome: "sent"},
	{ID: goSession.MetricGatewayUnauthorized, Name: "gosession_gateway_unauthorized_total", Help: "Gateway responses with status 401.", Operation: "gateway", Outcome: "unauthorized"},
	{ID: goSession.MetricGatewayNetworkError, Name: "gosession_gateway_network_error_total", Help: "Gateway requests that failed at the transport.", Operation: "gateway", Outcome: "network_error"},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricAuthorityLatency, Name: "gosession_authority_latency_seconds", Help: "Latency of session authority calls."},
}

// HistogramBounds are the upper bounds of the latency buckets, in seconds.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundValues mirrors HistogramBounds without the +Inf bucket.
var HistogramBoundValues = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// AuditDroppedName is the counter exported for audit backpressure.
const (
	AuditDroppedName = "gosession_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// NormalizeBuckets copies raw into a fixed eight-slot array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
