// Package metrics provides Prometheus metrics for the gating service.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Global metrics, held behind atomic pointers so the record
	// functions are lock-free no-ops until Init runs.
	requestsTotal      atomic.Pointer[prometheus.CounterVec]
	requestDuration    atomic.Pointer[prometheus.HistogramVec]
	checkerFailures    atomic.Pointer[prometheus.CounterVec]
	verificationsTotal atomic.Pointer[prometheus.CounterVec]
)

// Init registers all metrics with the provided registry.
// This should be called once at application startup.
func Init(reg prometheus.Registerer) error {
	requestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gating",
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled",
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestsTotalVec); err != nil {
		return fmt.Errorf("failed to register requestsTotal: %w", err)
	}

	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gating",
			Subsystem: "service",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestDurationVec); err != nil {
		return fmt.Errorf("failed to register requestDuration: %w", err)
	}

	// Checker failures: upstream RPC/API errors per category and
	// requirement kind. These are fail-closed denials, worth alerting on.
	checkerFailuresVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gating",
			Subsystem: "service",
			Name:      "checker_failures_total",
			Help:      "Total number of requirement checks that failed on an upstream error",
		},
		[]string{"category", "kind"},
	)
	if err := reg.Register(checkerFailuresVec); err != nil {
		return fmt.Errorf("failed to register checkerFailures: %w", err)
	}

	verificationsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gating",
			Subsystem: "service",
			Name:      "verifications_total",
			Help:      "Total number of verification completion calls by outcome",
		},
		[]string{"outcome"},
	)
	if err := reg.Register(verificationsTotalVec); err != nil {
		return fmt.Errorf("failed to register verificationsTotal: %w", err)
	}

	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	checkerFailures.Store(checkerFailuresVec)
	verificationsTotal.Store(verificationsTotalVec)

	return nil
}

// RecordRequest increments the request counter. The path should be
// normalized ("/api/locks/:id" rather than "/api/locks/123").
func RecordRequest(method, path, statusCode string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordRequestDuration records request latency in seconds.
func RecordRequestDuration(method, path, statusCode string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordCheckerFailure counts a requirement check that failed on an
// upstream error rather than an unmet requirement.
func RecordCheckerFailure(category, kind string) {
	if counter := checkerFailures.Load(); counter != nil {
		counter.WithLabelValues(category, kind).Inc()
	}
}

// RecordVerification counts a verification completion by outcome
// ("verified", "failed", "signature_mismatch", "preview").
func RecordVerification(outcome string) {
	if counter := verificationsTotal.Load(); counter != nil {
		counter.WithLabelValues(outcome).Inc()
	}
}

// Handler returns the HTTP handler serving Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GetMetricsText renders a registry in Prometheus text format.
// Useful for tests.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}
	return string(body), nil
}
