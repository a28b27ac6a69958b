package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CycleOutcomes counts per-subscription terminal states of poll cycles.
	CycleOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_watch_cycle_outcomes_total",
			Help: "Per-subscription outcomes of poll cycles",
		},
		[]string{"outcome"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appointment_watch_cycle_duration_seconds",
			Help:    "Wall time of one poll cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CyclesTotal counts cycles by result: ok, failed or skipped (overlap).
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_watch_cycles_total",
			Help: "Poll cycles by result",
		},
		[]string{"result"},
	)

	SubscriptionsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "appointment_watch_subscriptions_purged_total",
			Help: "Expired or exhausted subscriptions deleted by reconciliation",
		},
	)

	FeedFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "appointment_watch_feed_fetch_duration_seconds",
			Help:    "Duration of availability feed requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointment_watch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
)

func Init() {
	prometheus.MustRegister(CycleOutcomes, CycleDuration, CyclesTotal, SubscriptionsPurged, FeedFetchDuration, RequestCount)
}
