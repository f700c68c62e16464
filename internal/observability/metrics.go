package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	httpRequestsTotal        *prometheus.CounterVec
	httpLatencySeconds       *prometheus.HistogramVec
	httpErrorsTotal          *prometheus.CounterVec
	submissionsTotal         *prometheus.CounterVec
	gradingOperationsTotal   *prometheus.CounterVec
	gradingBatchSize         prometheus.Histogram
	latePenaltiesTotal       prometheus.Counter
	statisticsCacheHits      prometheus.Counter
	statisticsCacheMisses    prometheus.Counter
	notificationsPublished   *prometheus.CounterVec
	notificationDispatches   *prometheus.CounterVec
	notificationClientsGauge prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assessment_submissions_total",
			Help: "Submissions received, labelled by outcome.",
		}, []string{"outcome"})

		gradingOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grading_operations_total",
			Help: "Grading passes, labelled by mode and outcome.",
		}, []string{"mode", "outcome"})

		gradingBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grading_batch_size",
			Help:    "Number of entries per bulk grading request.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		})

		latePenaltiesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grading_late_penalties_total",
			Help: "Grades reduced by the late submission policy.",
		})

		statisticsCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statistics_cache_hits_total",
			Help: "Statistics served from the cache.",
		})

		statisticsCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "statistics_cache_misses_total",
			Help: "Statistics computed because the cache had no entry.",
		})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notifications delivered to inboxes or relayed from other nodes.",
		}, []string{"type"})

		notificationDispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_outbox_dispatch_total",
			Help: "Outbox delivery attempts, labelled by outcome.",
		}, []string{"outcome"})

		notificationClientsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notification_stream_clients",
			Help: "Currently connected notification stream clients.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			submissionsTotal,
			gradingOperationsTotal,
			gradingBatchSize,
			latePenaltiesTotal,
			statisticsCacheHits,
			statisticsCacheMisses,
			notificationsPublished,
			notificationDispatches,
			notificationClientsGauge,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// Submissions counts submission attempts by outcome.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// GradingOperations counts grading passes by mode (single, bulk, import) and outcome.
func GradingOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingOperationsTotal
}

// GradingBatchSize observes bulk grading request sizes.
func GradingBatchSize() prometheus.Histogram {
	RegisterMetrics()
	return gradingBatchSize
}

// LatePenalties counts grades reduced for lateness.
func LatePenalties() prometheus.Counter {
	RegisterMetrics()
	return latePenaltiesTotal
}

// StatisticsCacheHits counts cached statistics responses.
func StatisticsCacheHits() prometheus.Counter {
	RegisterMetrics()
	return statisticsCacheHits
}

// StatisticsCacheMisses counts statistics computed from storage.
func StatisticsCacheMisses() prometheus.Counter {
	RegisterMetrics()
	return statisticsCacheMisses
}

// NotificationsPublishedTotal counts notifications by type.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}

// NotificationDispatches counts outbox delivery attempts.
func NotificationDispatches() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationDispatches
}

// NotificationClientsActive tracks live SSE and websocket subscribers.
func NotificationClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return notificationClientsGauge
}
