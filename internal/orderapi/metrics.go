package orderapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_api_requests_total",
			Help: "Total number of order API calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_api_request_duration_seconds",
			Help:    "Order API call latency in seconds, retries included.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	pollAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_poll_attempts",
			Help:    "Number of GetOrder calls made by one poll, by result.",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 120},
		},
		[]string{"result"},
	)
)
