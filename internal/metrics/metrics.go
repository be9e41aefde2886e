// OAuthBridge - Self-hosted OAuth 2.0 Authorization-Code Broker
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/oauthbridge

// Package metrics provides Prometheus instrumentation for the broker:
// HTTP endpoint latency and throughput, login flow outcomes, token
// refresh cache efficiency, upstream provider calls, and circuit
// breaker state. Metrics are exposed at /metrics in Prometheus text
// format.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of active HTTP requests",
		},
	)

	// Login Flow Metrics
	LoginsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logins_started_total",
			Help: "Total number of authorization flows started",
		},
		[]string{"service"},
	)

	LoginsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logins_completed_total",
			Help: "Total number of authorization flows completed",
		},
		[]string{"service", "outcome"}, // "success", "state_mismatch", "exchange_failed"
	)

	CliTokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cli_tokens_issued_total",
			Help: "Total number of CLI token logins exchanged for AuthIds",
		},
		[]string{"service"},
	)

	Revocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revocations_total",
			Help: "Total number of credential revocations",
		},
		[]string{"outcome"}, // "deleted", "invalid", "unsupported"
	)

	// Refresh Metrics
	RefreshRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_requests_total",
			Help: "Total number of access token refresh requests",
		},
		[]string{"version", "outcome"}, // version: "v1", "v2"; outcome: "cache_hit", "refreshed", "rejected"
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "token", "state", "fetch"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cached entries",
		},
		[]string{"cache_type"},
	)

	// Upstream Provider Metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of token endpoint calls to upstream providers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host", "grant_type"},
	)

	UpstreamRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_request_errors_total",
			Help: "Total number of failed upstream token endpoint calls",
		},
		[]string{"host", "grant_type", "status_code"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breakers",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Credential Store Metrics
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_store_operations_total",
			Help: "Total number of credential store operations",
		},
		[]string{"operation", "result"}, // operation: "put", "get", "delete"
	)
)

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordUpstreamRequest records a token endpoint call to an upstream provider.
// statusCode is 0 when the request never produced a response.
func RecordUpstreamRequest(host, grantType string, statusCode int, duration time.Duration, err error) {
	UpstreamRequestDuration.WithLabelValues(host, grantType).Observe(duration.Seconds())
	if err != nil {
		UpstreamRequestErrors.WithLabelValues(host, grantType, strconv.Itoa(statusCode)).Inc()
	}
}

// RecordCacheAccess records a hit or miss on one of the broker caches.
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
	} else {
		CacheMisses.WithLabelValues(cacheType).Inc()
	}
}

// RecordStoreOperation records a credential store operation result.
func RecordStoreOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	StoreOperations.WithLabelValues(operation, result).Inc()
}
