package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsCreated counts notification records persisted, by type.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_notifications_created_total",
			Help: "Total number of notification records created",
		},
		[]string{"type"},
	)

	// JobsProcessed counts dispatch outcomes (delivered|no_tokens|already_claimed|retried|dead_lettered|error).
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_jobs_processed_total",
			Help: "Total number of queue jobs processed by outcome",
		},
		[]string{"outcome"},
	)

	// GatewaySends counts push gateway calls by result (success|transient|unregistered).
	GatewaySends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_gateway_sends_total",
			Help: "Total number of push gateway send attempts",
		},
		[]string{"result"},
	)

	// CredentialRefreshes counts assertion exchanges against the token endpoint.
	CredentialRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifyd_credential_refreshes_total",
			Help: "Total number of bearer credential refreshes",
		},
	)

	// TokensDeactivated counts device tokens retired after permanent gateway failures.
	TokensDeactivated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifyd_tokens_deactivated_total",
			Help: "Total number of device tokens deactivated",
		},
	)

	// QueueDepth reports the current size of each queue list (normal|priority|delayed|dead_letter).
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notifyd_queue_depth",
			Help: "Current queue depth per list",
		},
		[]string{"list"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifyd_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
