package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000},
		},
		[]string{"method", "endpoint"},
	)

	// Pipeline metrics
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_submissions_total",
			Help: "Total number of contact form submissions by outcome",
		},
		[]string{"outcome"}, // created, rate_limited, invalid, duplicate, timeout, unavailable
	)

	persistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contact_persist_duration_seconds",
			Help:    "Time spent storing a submission",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contact_notifications_total",
			Help: "Total number of notification attempts",
		},
		[]string{"channel", "provider", "status"}, // sent, failed, skipped
	)

	rateLimiterErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limiter_errors_total",
			Help: "Rate limiter backend failures (requests were let through)",
		},
	)
)

// Endpoints with their own label; everything else is "other" to bound cardinality.
var knownEndpoints = map[string]bool{
	"/contact":     true,
	"/api/contact": true,
	"/health":      true,
}

// PrometheusMiddleware creates a middleware that records Prometheus metrics
func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Skip metrics endpoint itself
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		endpoint := r.URL.Path
		if !knownEndpoints[endpoint] {
			endpoint = "other"
		}
		if r.ContentLength > 0 {
			httpRequestSize.WithLabelValues(r.Method, endpoint).Observe(float64(r.ContentLength))
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, endpoint, statusCode).Inc()
		httpRequestDuration.WithLabelValues(r.Method, endpoint, statusCode).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RecordSubmission records the terminal outcome of a submission
func RecordSubmission(outcome string) {
	submissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordPersist records how long a store call took
func RecordPersist(d time.Duration) {
	persistDuration.Observe(d.Seconds())
}

// RecordNotification records one notification outcome
func RecordNotification(channel, provider string, success, skipped bool) {
	status := "failed"
	switch {
	case skipped:
		status = "skipped"
	case success:
		status = "sent"
	}
	if provider == "" {
		provider = "none"
	}
	notificationsTotal.WithLabelValues(channel, provider, status).Inc()
}

// RecordRateLimiterError records a limiter backend failure
func RecordRateLimiterError() {
	rateLimiterErrorsTotal.Inc()
}
