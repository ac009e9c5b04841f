// Package metrics exposes Prometheus collectors for the webscout service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerAttemptsTotal      *prometheus.CounterVec
	providerLatencySeconds     *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	navigationsTotal           *prometheus.CounterVec
	sessionsActive             prometheus.Gauge
	sessionTransitionsTotal    *prometheus.CounterVec
	extractionsTotal           *prometheus.CounterVec
	cacheEntries               prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		providerAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webscout_provider_attempts_total",
				Help: "Search provider attempts, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		providerLatencySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webscout_provider_latency_seconds",
				Help:    "Histogram of search provider call latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webscout_rate_limit_delays_seconds",
				Help:    "Histogram of provider rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		)

		navigationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webscout_navigations_total",
				Help: "Browser navigations, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		sessionsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webscout_sessions_active",
				Help: "Number of scraping sessions currently holding a page.",
			},
		)

		sessionTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webscout_session_transitions_total",
				Help: "Session state transitions, labeled by target status.",
			},
			[]string{"status"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webscout_extractions_total",
				Help: "Extraction runs, labeled by the method that produced records.",
			},
			[]string{"method"},
		)

		cacheEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webscout_cache_entries",
				Help: "Number of entries in the resolution cache.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveProviderAttempt records one provider call and its latency.
func ObserveProviderAttempt(provider, outcome string, duration time.Duration) {
	Init()
	providerAttemptsTotal.WithLabelValues(provider, outcome).Inc()
	providerLatencySeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(provider string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveNavigation records a page navigation outcome.
func ObserveNavigation(rawURL, outcome string) {
	Init()
	navigationsTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}

// SetActiveSessions sets the live session gauge.
func SetActiveSessions(n int) {
	Init()
	sessionsActive.Set(float64(n))
}

// ObserveSessionTransition counts a session entering status.
func ObserveSessionTransition(status string) {
	Init()
	sessionTransitionsTotal.WithLabelValues(status).Inc()
}

// ObserveExtraction counts an extraction run by method.
func ObserveExtraction(method string) {
	Init()
	extractionsTotal.WithLabelValues(method).Inc()
}

// SetCacheEntries sets the resolution cache size gauge.
func SetCacheEntries(n int) {
	Init()
	cacheEntries.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
