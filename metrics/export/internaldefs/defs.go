package internaldefs

import (
	"github.com/MrEthical07/portalauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   portalauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: portalauth.MetricLoginSuccess, Name: "portalauth_login_success_total", Help: "Successful logins."},
	{ID: portalauth.MetricLoginFailure, Name: "portalauth_login_failure_total", Help: "Failed logins."},
	{ID: portalauth.MetricLoginRateLimited, Name: "portalauth_login_rate_limited_total", Help: "Logins rejected by the failed-login throttle."},
	{ID: portalauth.MetricLoginDeactivated, Name: "portalauth_login_deactivated_total", Help: "Logins rejected for deactivated principals."},
	{ID: portalauth.MetricTwoFactorRequired, Name: "portalauth_two_factor_required_total", Help: "Logins parked for a second factor."},
	{ID: portalauth.MetricTwoFactorSuccess, Name: "portalauth_two_factor_success_total", Help: "Accepted one-time codes."},
	{ID: portalauth.MetricTwoFactorFailure, Name: "portalauth_two_factor_failure_total", Help: "Rejected one-time codes."},
	{ID: portalauth.MetricTwoFactorAttemptsExceeded, Name: "portalauth_two_factor_attempts_exceeded_total", Help: "Pending logins dropped after too many wrong codes."},
	{ID: portalauth.MetricPendingAuthExpired, Name: "portalauth_pending_auth_expired_total", Help: "Pending logins presented after expiry."},
	{ID: portalauth.MetricPendingAuthReplay, Name: "portalauth_pending_auth_replay_total", Help: "Pending ids presented after consumption."},
	{ID: portalauth.MetricDeviceTrustBypass, Name: "portalauth_device_trust_bypass_total", Help: "Logins that skipped the second factor on a trusted device."},
	{ID: portalauth.MetricDeviceTrusted, Name: "portalauth_device_trusted_total", Help: "Devices marked trusted."},
	{ID: portalauth.MetricDeviceTrustRevoked, Name: "portalauth_device_trust_revoked_total", Help: "Trusted-device revocations."},
	{ID: portalauth.MetricSessionCreated, Name: "portalauth_session_created_total", Help: "Created sessions."},
	{ID: portalauth.MetricSessionReplaced, Name: "portalauth_session_replaced_total", Help: "Sessions replaced by a newer login."},
	{ID: portalauth.MetricSessionResumed, Name: "portalauth_session_resumed_total", Help: "Sessions resumed from a remember-me token."},
	{ID: portalauth.MetricSessionInvalidated, Name: "portalauth_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: portalauth.MetricLogout, Name: "portalauth_logout_total", Help: "Logouts."},
	{ID: portalauth.MetricTokenIssued, Name: "portalauth_token_issued_total", Help: "Issued access/refresh pairs."},
	{ID: portalauth.MetricRefreshSuccess, Name: "portalauth_refresh_success_total", Help: "Successful refreshes."},
	{ID: portalauth.MetricRefreshFailure, Name: "portalauth_refresh_failure_total", Help: "Rejected refreshes."},
	{ID: portalauth.MetricRefreshReuseRejected, Name: "portalauth_refresh_reuse_rejected_total", Help: "Refresh tokens rejected on reuse."},
	{ID: portalauth.MetricBearerRejected, Name: "portalauth_bearer_rejected_total", Help: "Requests rejected by the stateless gatekeeper."},
	{ID: portalauth.MetricSessionRejected, Name: "portalauth_session_rejected_total", Help: "Requests rejected by the stateful gatekeeper."},
	{ID: portalauth.MetricDeactivationRevoked, Name: "portalauth_deactivation_revoked_total", Help: "Revocations triggered by deactivated principals."},
	{ID: portalauth.MetricPasswordChanged, Name: "portalauth_password_changed_total", Help: "Password changes."},
	{ID: portalauth.MetricPasswordRehashed, Name: "portalauth_password_rehashed_total", Help: "Password hashes upgraded on login."},
	{ID: portalauth.MetricTwoFactorEnabled, Name: "portalauth_two_factor_enabled_total", Help: "Two-factor enrollments."},
	{ID: portalauth.MetricTwoFactorDisabled, Name: "portalauth_two_factor_disabled_total", Help: "Two-factor removals."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: portalauth.MetricGatekeeperLatency, Name: "portalauth_gatekeeper_latency_seconds", Help: "Gatekeeper check latency."},
}

// AuditDroppedName is the counter of audit events lost to backpressure.
const AuditDroppedName = "portalauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters that
// flatten buckets into gauges.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
