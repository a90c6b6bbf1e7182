package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	requestsTotal        *prometheus.CounterVec
	latencySeconds       *prometheus.HistogramVec
	errorsTotal          *prometheus.CounterVec
	submissionsTotal     *prometheus.CounterVec
	scorePercentage      prometheus.Histogram
	presenceSessions     *prometheus.GaugeVec
	liveConnectionsTotal prometheus.Counter
	relayDroppedTotal    *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exam_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_submissions_total",
			Help: "Submissions processed, partitioned by outcome.",
		}, []string{"outcome"})

		scorePercentage = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exam_score_percentage",
			Help:    "Distribution of stored result percentages.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		})

		presenceSessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exam_presence_sessions",
			Help: "Connected sessions on this node by presence status.",
		}, []string{"status"})

		liveConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_live_connections_total",
			Help: "Websocket connections accepted by the live gateway.",
		})

		relayDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_relay_dropped_total",
			Help: "Live events dropped because a subscriber was too slow.",
		}, []string{"event"})

		prometheus.MustRegister(
			requestsTotal,
			latencySeconds,
			errorsTotal,
			submissionsTotal,
			scorePercentage,
			presenceSessions,
			liveConnectionsTotal,
			relayDroppedTotal,
		)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for API error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// Submissions exposes the submission outcome counter.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// ScorePercentage exposes the stored percentage histogram.
func ScorePercentage() prometheus.Histogram {
	RegisterMetrics()
	return scorePercentage
}

// PresenceSessions exposes the per-status presence gauge.
func PresenceSessions() *prometheus.GaugeVec {
	RegisterMetrics()
	return presenceSessions
}

// LiveConnections exposes the accepted websocket counter.
func LiveConnections() prometheus.Counter {
	RegisterMetrics()
	return liveConnectionsTotal
}

// RelayDropped exposes the dropped live event counter.
func RelayDropped() *prometheus.CounterVec {
	RegisterMetrics()
	return relayDroppedTotal
}
