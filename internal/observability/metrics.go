// Package observability exposes the service's prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TripsCreated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roamly", Name: "trips_created_total", Help: "Total trips created"})
	TripsPublished = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roamly", Name: "trips_published_total", Help: "Total trips published"})
	TripsCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roamly", Name: "trips_completed_total", Help: "Trips whose completion side effects ran"})

	JoinRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roamly", Name: "join_requests_total", Help: "Join request transitions"},
		[]string{"outcome"}, // asked, accepted, rejected, cancelled
	)

	ReviewsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roamly", Name: "reviews_submitted_total", Help: "Reviews accepted by kind"},
		[]string{"kind"}, // trip, peer
	)

	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "roamly", Name: "store_version_conflicts_total", Help: "Optimistic-write conflicts seen by services"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roamly", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roamly",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
