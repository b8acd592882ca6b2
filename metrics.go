package authkit

import "sync/atomic"

// MetricID names one engine counter.
type MetricID uint16

const (
	// MetricRegisterSuccess counts accepted registrations.
	MetricRegisterSuccess MetricID = iota
	// MetricRegisterDuplicate counts registrations against existing emails.
	MetricRegisterDuplicate
	// MetricRegisterRateLimited counts throttled registrations.
	MetricRegisterRateLimited
	// MetricVerifySuccess counts completed account verifications.
	MetricVerifySuccess
	// MetricVerifyFailure counts rejected verification codes.
	MetricVerifyFailure
	// MetricVerifyExhausted counts codes killed by the attempt budget.
	MetricVerifyExhausted
	// MetricOTPIssued counts codes issued across all intents.
	MetricOTPIssued
	// MetricOTPResent counts superseding reissues.
	MetricOTPResent
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure
	// MetricLoginRateLimited counts throttled logins.
	MetricLoginRateLimited
	// MetricRefreshSuccess counts successful rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh attempts.
	MetricRefreshFailure
	// MetricRefreshReuseDetected counts replays of consumed refresh tokens.
	MetricRefreshReuseDetected
	// MetricRefreshRateLimited counts throttled refresh attempts.
	MetricRefreshRateLimited
	// MetricTokenIssued counts issued token pairs.
	MetricTokenIssued
	// MetricTokenRevoked counts explicit single-token revocations.
	MetricTokenRevoked
	// MetricLogout counts logouts.
	MetricLogout
	// MetricRevokeAll counts account-wide revocations.
	MetricRevokeAll
	// MetricPasswordResetRequest counts reset initiations.
	MetricPasswordResetRequest
	// MetricPasswordResetConfirm counts reset codes accepted.
	MetricPasswordResetConfirm
	// MetricPasswordResetComplete counts finished resets.
	MetricPasswordResetComplete
	// MetricPasswordResetFailure counts rejected reset steps.
	MetricPasswordResetFailure
	// MetricRateLimitHit counts every limiter rejection across scopes.
	MetricRateLimitHit
	metricIDCount
)

const cacheLineSize = 64

// paddedCounter keeps each counter on its own cache line so concurrent
// increments of different metrics do not contend.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed array of atomic counters. The zero-allocation Inc
// path makes it safe to call on every request.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	return s
}

// MetricName returns the stable string name of a metric for exporters.
func MetricName(id MetricID) string {
	switch id {
	case MetricRegisterSuccess:
		return "register_success"
	case MetricRegisterDuplicate:
		return "register_duplicate"
	case MetricRegisterRateLimited:
		return "register_rate_limited"
	case MetricVerifySuccess:
		return "verify_success"
	case MetricVerifyFailure:
		return "verify_failure"
	case MetricVerifyExhausted:
		return "verify_exhausted"
	case MetricOTPIssued:
		return "otp_issued"
	case MetricOTPResent:
		return "otp_resent"
	case MetricLoginSuccess:
		return "login_success"
	case MetricLoginFailure:
		return "login_failure"
	case MetricLoginRateLimited:
		return "login_rate_limited"
	case MetricRefreshSuccess:
		return "refresh_success"
	case MetricRefreshFailure:
		return "refresh_failure"
	case MetricRefreshReuseDetected:
		return "refresh_reuse_detected"
	case MetricRefreshRateLimited:
		return "refresh_rate_limited"
	case MetricTokenIssued:
		return "token_issued"
	case MetricTokenRevoked:
		return "token_revoked"
	case MetricLogout:
		return "logout"
	case MetricRevokeAll:
		return "revoke_all"
	case MetricPasswordResetRequest:
		return "password_reset_request"
	case MetricPasswordResetConfirm:
		return "password_reset_confirm"
	case MetricPasswordResetComplete:
		return "password_reset_complete"
	case MetricPasswordResetFailure:
		return "password_reset_failure"
	case MetricRateLimitHit:
		return "rate_limit_hit"
	default:
		return "unknown"
	}
}

// MetricIDs returns every defined metric, for exporters that register
// instruments up front.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}
