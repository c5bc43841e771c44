package internaldefs

import (
	"github.com/MrEthical07/shopauth"
)

type CounterDef struct {
	ID   shopauth.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   shopauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: shopauth.MetricLoginSuccess, Name: "shopauth_login_success_total", Help: "Successful logins."},
	{ID: shopauth.MetricLoginFailure, Name: "shopauth_login_failure_total", Help: "Failed logins, any reason except an active lock."},
	{ID: shopauth.MetricLoginLocked, Name: "shopauth_login_locked_total", Help: "Login attempts rejected because the account was locked."},
	{ID: shopauth.MetricAccountLocked, Name: "shopauth_account_locked_total", Help: "Accounts locked after reaching the failure threshold."},
	{ID: shopauth.MetricAccountUnlocked, Name: "shopauth_account_unlocked_total", Help: "Administrative unlocks."},
	{ID: shopauth.MetricPasswordUpgraded, Name: "shopauth_password_upgraded_total", Help: "Password hashes re-encoded at current cost on login."},
	{ID: shopauth.MetricRegisterSuccess, Name: "shopauth_register_success_total", Help: "Accounts created by registration."},
	{ID: shopauth.MetricRegisterRejected, Name: "shopauth_register_rejected_total", Help: "Registrations rejected."},
	{ID: shopauth.MetricRefreshSuccess, Name: "shopauth_refresh_success_total", Help: "Successful refresh-token rotations."},
	{ID: shopauth.MetricRefreshFailure, Name: "shopauth_refresh_failure_total", Help: "Failed refresh-token rotations."},
	{ID: shopauth.MetricRefreshReuseDetected, Name: "shopauth_refresh_reuse_detected_total", Help: "Dead refresh tokens presented."},
	{ID: shopauth.MetricFamilyRevoked, Name: "shopauth_refresh_family_revoked_total", Help: "Reuse responses that revoked live sessions."},
	{ID: shopauth.MetricLogout, Name: "shopauth_logout_total", Help: "Single-session logouts."},
	{ID: shopauth.MetricLogoutAll, Name: "shopauth_logout_all_total", Help: "Revoke-all operations."},
	{ID: shopauth.MetricAuthorizeAllowed, Name: "shopauth_authorize_allowed_total", Help: "Authorization decisions that allowed the call."},
	{ID: shopauth.MetricAuthorizeForbidden, Name: "shopauth_authorize_forbidden_total", Help: "Authorization decisions that returned forbidden."},
	{ID: shopauth.MetricAuthorizeUnauthenticated, Name: "shopauth_authorize_unauthenticated_total", Help: "Calls without a valid access token."},
	{ID: shopauth.MetricLiveResolve, Name: "shopauth_authorize_live_resolve_total", Help: "Authorization decisions that re-resolved the role graph."},
}

var HistogramDefs = []HistogramDef{
	{ID: shopauth.MetricAuthorizeLatency, Name: "shopauth_authorize_latency_seconds", Help: "Authorize latency."},
}

// AuditDropped is exported alongside the engine counters.
var AuditDropped = CounterDef{
	Name: "shopauth_audit_dropped_total",
	Help: "Audit events dropped due to dispatcher backpressure.",
}

// HistogramBounds are the engine bucket upper bounds in seconds, without
// the implicit +Inf bucket.
var HistogramBounds = []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten buckets into separate instruments.
var HistogramBoundSuffix = []string{
	"0_001",
	"0_002",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the engine bucket count.
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
