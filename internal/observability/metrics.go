package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesReturned = promauto.NewCounter(prometheus.CounterOpts{Namespace: "liftmatch", Name: "matches_returned_total", Help: "Total match results returned to riders"})
	MatchLatency    = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "liftmatch", Name: "match_latency_seconds", Help: "Match query latency seconds"})

	WatchEvaluations       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "liftmatch", Name: "watch_evaluations_total", Help: "Total watches evaluated against trigger rides"})
	WatchMatches           = promauto.NewCounter(prometheus.CounterOpts{Namespace: "liftmatch", Name: "watch_matches_total", Help: "Total watch matches produced"})
	NotificationsPersisted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "liftmatch", Name: "notifications_persisted_total", Help: "Total in-app notifications written"})
	PushesSent             = promauto.NewCounter(prometheus.CounterOpts{Namespace: "liftmatch", Name: "pushes_sent_total", Help: "Total push payloads delivered"})
	PushEndpointsPruned    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "liftmatch", Name: "push_endpoints_pruned_total", Help: "Total expired push endpoints removed"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "liftmatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "liftmatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
