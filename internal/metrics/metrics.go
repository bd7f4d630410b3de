// Package metrics holds the Prometheus collectors of the session subsystem.
// They are registered on the default registry and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttemptsTotal counts logins by result.
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopease_login_attempts_total",
		Help: "The total number of login attempts",
	}, []string{"result"})

	// TokenRefreshTotal counts access token refreshes by result.
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopease_token_refresh_total",
		Help: "The total number of access token refreshes",
	}, []string{"result"})

	LogoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopease_logouts_total",
		Help: "The total number of logout calls",
	}, []string{"result"})

	// SessionsRevokedTotal counts refresh tokens removed by revoke-all.
	SessionsRevokedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopease_sessions_revoked_total",
		Help: "The total number of refresh tokens revoked by revoke-all",
	})

	// RevocationFailuresTotal counts best-effort deletes that did not land.
	RevocationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopease_session_revocation_failures_total",
		Help: "The total number of refresh token deletions that failed",
	}, []string{"operation"})

	// EdgeRejectionsTotal counts 401 responses of the gateway by reason.
	EdgeRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shopease_edge_auth_rejections_total",
		Help: "The total number of requests rejected by the edge authenticator",
	}, []string{"reason"})

	// StoreOperationDuration observes credential store latency.
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopease_credential_store_operation_duration_seconds",
		Help:    "The credential store operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
