// Package metrics registers the Prometheus collectors of the API.
//
// HTTP traffic:
//   - http_request_total: counter with method, path and status labels
//   - http_request_duration_seconds: histogram with method and path labels
//   - http_request_in_flight: gauge of concurrent requests
//
// Domain:
//   - oracle_requests_total: counter of analyses by outcome
//   - oracle_request_duration_seconds: histogram of oracle round trips
//   - collection_size: gauge per collection
//   - checkout_confirmations_total: counter of confirmed checkouts
//   - persistence_errors_total: counter of failed store operations by op
//   - realtime_sessions: gauge of connected websocket clients
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Analysis outcomes used as the oracle_requests_total label
const (
	OutcomeSuccess           = "success"
	OutcomeOracleCall        = "oracle_call"
	OutcomeMalformedResponse = "malformed_response"
	OutcomeRejected          = "rejected"
)

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15, 30, 60},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	OracleRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_requests_total",
			Help: "Price analyses by outcome",
		},
		[]string{"outcome"},
	)

	OracleRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracle_request_duration_seconds",
			Help:    "Latency of the grounded generation call",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
		},
	)

	CollectionSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collection_size",
			Help: "Number of records per collection",
		},
		[]string{"collection"},
	)

	CheckoutConfirmations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_confirmations_total",
			Help: "Confirmed checkouts",
		},
	)

	PersistenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistence_errors_total",
			Help: "Failed reads and writes against the collection store",
		},
		[]string{"op"},
	)

	RealtimeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_sessions",
			Help: "Connected websocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestTotals,
		HTTPRequestDuration,
		HTTPRequestInFlight,
		RateLimiterBucketsTotal,
		OracleRequests,
		OracleRequestDuration,
		CollectionSize,
		CheckoutConfirmations,
		PersistenceErrors,
		RealtimeSessions,
	)
}
