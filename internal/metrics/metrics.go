// Package metrics exposes Prometheus collectors for the scraper service.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	navigationsTotal           *prometheus.CounterVec
	navigationDurationSeconds  *prometheus.HistogramVec
	interceptedPayloadsTotal   *prometheus.CounterVec
	extractionFieldsTotal      *prometheus.CounterVec
	paginationClicksTotal      *prometheus.CounterVec
	jobsTotal                  *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	rateLimitedTotal           prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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

		navigationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_navigations_total",
				Help: "Browser navigation attempts, labeled by site, wait profile and outcome.",
			},
			[]string{"site", "profile", "outcome"},
		)

		navigationDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_navigation_duration_seconds",
				Help:    "Histogram of successful navigation latencies, labeled by wait profile.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"profile"},
		)

		interceptedPayloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_intercepted_payloads_total",
				Help: "Item payloads captured from metadata API responses, labeled by site.",
			},
			[]string{"site"},
		)

		extractionFieldsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_extraction_fields_total",
				Help: "Record fields filled, labeled by the extraction tier that supplied them.",
			},
			[]string{"tier"},
		)

		paginationClicksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pagination_clicks_total",
				Help: "Pagination control clicks, labeled by matcher and whether the page changed.",
			},
			[]string{"matcher", "changed"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Total number of jobs processed, labeled by final status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		rateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_rate_limited_total",
				Help: "Job submissions rejected by the client rate limiter.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
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
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveNavigation records one navigation attempt.
func ObserveNavigation(rawURL, profile string, err error, duration time.Duration) {
	Init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	navigationsTotal.WithLabelValues(SanitizeSite(rawURL), profile, outcome).Inc()
	if err == nil {
		navigationDurationSeconds.WithLabelValues(profile).Observe(duration.Seconds())
	}
}

// ObserveInterceptedPayloads counts item payloads stored from one API response.
func ObserveInterceptedPayloads(rawURL string, n int) {
	if n <= 0 {
		return
	}
	Init()
	interceptedPayloadsTotal.WithLabelValues(SanitizeSite(rawURL)).Add(float64(n))
}

// ObserveExtractionField records which tier supplied a record field.
func ObserveExtractionField(tier string) {
	Init()
	extractionFieldsTotal.WithLabelValues(tier).Inc()
}

// ObservePaginationClick records a pagination click and whether it changed the page.
func ObservePaginationClick(matcher string, changed bool) {
	Init()
	paginationClicksTotal.WithLabelValues(matcher, strconv.FormatBool(changed)).Inc()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimited counts a rejected job submission.
func ObserveRateLimited() {
	Init()
	rateLimitedTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}
