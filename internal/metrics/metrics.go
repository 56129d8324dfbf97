// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the coach service.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	responseBytes    *prometheus.CounterVec
	inFlightRequests prometheus.Gauge
	upstreamHealthy  prometheus.Gauge
	llmCalls         *prometheus.CounterVec
	llmRetries       prometheus.Counter
	llmCache         *prometheus.CounterVec
	sandboxRuns      *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// New returns the process-wide metrics collector.
func New() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sqlcoach_requests_total",
					Help: "Total number of actions processed",
				},
				[]string{"action", "status"},
			),
			requestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "sqlcoach_request_duration_seconds",
					Help:    "Action duration in seconds",
					Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
				},
				[]string{"action"},
			),
			responseBytes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sqlcoach_response_bytes_total",
					Help: "Total response bytes written per action",
				},
				[]string{"action"},
			),
			inFlightRequests: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "sqlcoach_requests_in_flight",
					Help: "Number of actions currently running",
				},
			),
			upstreamHealthy: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "sqlcoach_upstream_healthy",
					Help: "LLM upstream health status (1 = healthy, 0 = unhealthy)",
				},
			),
			llmCalls: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sqlcoach_llm_calls_total",
					Help: "Total chat completion calls by outcome",
				},
				[]string{"outcome"},
			),
			llmRetries: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "sqlcoach_llm_retries_total",
					Help: "Total chat completion attempts that were retried",
				},
			),
			llmCache: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sqlcoach_llm_cache_total",
					Help: "LLM response cache lookups by result",
				},
				[]string{"result"},
			),
			sandboxRuns: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sqlcoach_sandbox_runs_total",
					Help: "Sandbox executions by outcome (ok or failing stage)",
				},
				[]string{"outcome"},
			),
			activeSessions: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "sqlcoach_sessions_active",
					Help: "Number of live session workspaces",
				},
			),
		}
	})
	return metricsInst
}

func label(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// RecordRequest records a completed action.
func (m *Metrics) RecordRequest(action, status string, duration time.Duration, bytesOut int64) {
	if m == nil {
		return
	}
	action = label(action)
	m.requestsTotal.WithLabelValues(action, label(status)).Inc()
	m.requestDuration.WithLabelValues(action).Observe(duration.Seconds())
	if bytesOut > 0 {
		m.responseBytes.WithLabelValues(action).Add(float64(bytesOut))
	}
}

// IncInFlight marks one more action as running.
func (m *Metrics) IncInFlight() {
	if m == nil {
		return
	}
	m.inFlightRequests.Inc()
}

// DecInFlight marks one running action as finished.
func (m *Metrics) DecInFlight() {
	if m == nil {
		return
	}
	m.inFlightRequests.Dec()
}

// UpdateUpstreamHealth updates the upstream health gauge.
func (m *Metrics) UpdateUpstreamHealth(healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.upstreamHealthy.Set(1)
	} else {
		m.upstreamHealthy.Set(0)
	}
}

// RecordLLMCall records the final outcome of one chat completion call.
func (m *Metrics) RecordLLMCall(outcome string) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(label(outcome)).Inc()
}

// RecordLLMRetry records one retried attempt.
func (m *Metrics) RecordLLMRetry() {
	if m == nil {
		return
	}
	m.llmRetries.Inc()
}

// RecordCache records a response cache lookup.
func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.llmCache.WithLabelValues("hit").Inc()
	} else {
		m.llmCache.WithLabelValues("miss").Inc()
	}
}

// RecordSandboxRun records a sandbox execution; outcome is "ok" or the failing stage.
func (m *Metrics) RecordSandboxRun(outcome string) {
	if m == nil {
		return
	}
	m.sandboxRuns.WithLabelValues(label(outcome)).Inc()
}

// UpdateSessions sets the live session gauge.
func (m *Metrics) UpdateSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
