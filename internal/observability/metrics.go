package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsStored   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "van_notify", Name: "notifications_stored_total", Help: "Notifications accepted into a recipient log"})
	DuplicatesDropped     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "van_notify", Name: "duplicates_dropped_total", Help: "Inbound notifications rejected as re-deliveries"})
	TransportErrors       = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "van_notify", Name: "transport_errors_total", Help: "Failed republish attempts per transport"}, []string{"transport"})
	SubscribersLive       = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "van_notify", Name: "subscribers_live", Help: "In-process subscribers currently registered"})
	PollerReconciled      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "van_notify", Name: "poller_reconciled_total", Help: "Notifications delivered by the reconciliation poller"})
	InvalidTransitions    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "van_notify", Name: "invalid_transitions_total", Help: "Trip transitions rejected by the state guard"})
	AlertsPlayed          = promauto.NewCounter(prometheus.CounterOpts{Namespace: "van_notify", Name: "alerts_played_total", Help: "Audible alerts played via the primary player"})
	AlertFallbacks        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "van_notify", Name: "alert_fallbacks_total", Help: "Alerts that fell back to the tone synthesizer"})
	AlertFailures         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "van_notify", Name: "alert_failures_total", Help: "Alerts that failed every playback strategy"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "van_notify", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "van_notify",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
