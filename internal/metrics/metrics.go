// Package metrics holds the Prometheus collectors for the whole process.
//
// Collectors are registered with promauto on the default registry at init,
// so importing the package is enough; GET /metrics serves them through
// promhttp.Handler().
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Business

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippet_vault_webhook_events_total",
			Help: "Payment webhook events by type and outcome",
		},
		[]string{"event_type", "result"}, // result: processed, duplicate, ignored, missing_user, invalid_signature, malformed, failed
	)

	QuotaRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippet_vault_quota_rejections_total",
			Help: "Create requests rejected because the plan limit was reached",
		},
		[]string{"resource"},
	)

	PublicCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snippet_vault_public_cache_lookups_total",
			Help: "Public snippet cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snippet_vault_upload_bytes_total",
			Help: "Bytes written to the object store",
		},
	)

	// Circuit breakers

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)
)

// RecordHTTPRequest records one finished request.
func RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordWebhookEvent(eventType, result string) {
	if eventType == "" {
		eventType = "unknown"
	}
	WebhookEvents.WithLabelValues(eventType, result).Inc()
}

func RecordQuotaRejection(resource string) {
	QuotaRejections.WithLabelValues(resource).Inc()
}

func RecordCacheLookup(result string) {
	PublicCacheLookups.WithLabelValues(result).Inc()
}
