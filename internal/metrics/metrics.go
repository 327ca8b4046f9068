package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_checkins_total",
			Help: "Total number of check-in attempts by outcome",
		},
		[]string{"outcome"},
	)

	MatchDistance = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attendance_match_distance",
			Help:    "Distance of the best candidate for accepted matches",
			Buckets: prometheus.LinearBuckets(0, 0.1, 12),
		},
	)

	CheckinStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attendance_checkin_duration_seconds",
			Help:    "Time spent in each check-in state",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
