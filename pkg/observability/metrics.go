package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Environment backend metrics
	envRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgym_env_requests_total",
			Help: "Total number of environment backend requests",
		},
		[]string{"kind", "op", "status"},
	)

	envRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentgym_env_request_duration_seconds",
			Help:    "Environment backend request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "op"},
	)

	envRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgym_env_retries_total",
			Help: "Total number of retried environment operations",
		},
		[]string{"kind", "op"},
	)

	// Session metrics
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentgym_sessions_active",
			Help: "Number of active environment sessions",
		},
	)

	sessionRounds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentgym_session_rounds",
			Help:    "Rounds executed per finished session",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 40, 50},
		},
		[]string{"kind"},
	)

	sessionReward = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentgym_session_reward",
			Help:    "Cumulative reward per finished session",
			Buckets: []float64{0, 0.1, 0.25, 0.5, 0.75, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	// Policy metrics
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentgym_generations_total",
			Help: "Total number of action decisions",
		},
		[]string{"kind", "source"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentgym_generation_duration_seconds",
			Help:    "Action decision duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// System metrics
	memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentgym_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)

	goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentgym_goroutines",
			Help: "Number of goroutines",
		},
	)

	initOnce sync.Once
)

// InitMetrics initializes Prometheus metrics
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			envRequestsTotal,
			envRequestDuration,
			envRetriesTotal,
			sessionsActive,
			sessionRounds,
			sessionReward,
			generationsTotal,
			generationDuration,
			memoryUsage,
			goroutines,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordEnvRequest records one environment backend request
func RecordEnvRequest(kind, op, status string, duration time.Duration) {
	envRequestsTotal.WithLabelValues(kind, op, status).Inc()
	envRequestDuration.WithLabelValues(kind, op).Observe(duration.Seconds())
}

// RecordEnvRetry records a retried environment operation
func RecordEnvRetry(kind, op string) {
	envRetriesTotal.WithLabelValues(kind, op).Inc()
}

// RecordGeneration records one action decision and where it came from
func RecordGeneration(kind, source string, duration time.Duration) {
	generationsTotal.WithLabelValues(kind, source).Inc()
	generationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetActiveSessions sets the active sessions gauge
func SetActiveSessions(count int) {
	sessionsActive.Set(float64(count))
}

// RecordSessionEnd records round and reward totals for a finished session
func RecordSessionEnd(kind string, rounds int, reward float64) {
	sessionRounds.WithLabelValues(kind).Observe(float64(rounds))
	sessionReward.WithLabelValues(kind).Observe(reward)
}

// SetMemoryUsage sets the memory usage gauge
func SetMemoryUsage(bytes uint64) {
	memoryUsage.Set(float64(bytes))
}

// SetGoroutines sets the goroutines gauge
func SetGoroutines(count int) {
	goroutines.Set(float64(count))
}
