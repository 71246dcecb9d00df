// Package metrics holds the Prometheus instruments of the alignment server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the alignment service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Job metrics
	Jobs        *prometheus.CounterVec
	ActiveJobs  prometheus.Gauge
	SuccessRate prometheus.Histogram

	// Session metrics
	Sessions        *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	Utterances      prometheus.Counter
	BridgeBytes     prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "align_jobs_total",
			Help: "Alignment jobs by mode and final status",
		}, []string{"mode", "status"}),
		ActiveJobs: f.NewGauge(prometheus.GaugeOpts{
			Name: "align_active_jobs",
			Help: "Alignment jobs currently running",
		}),
		SuccessRate: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "align_success_rate",
			Help:    "Book success rate of completed alignments, in percent",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),

		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "align_sessions_total",
			Help: "Recognition sessions by book structure",
		}, []string{"structure"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "align_session_seconds",
			Help:    "Wall time of one recognition session",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
		}),
		Utterances: f.NewCounter(prometheus.CounterOpts{
			Name: "align_recognized_utterances_total",
			Help: "Utterances received from the recognizer",
		}),
		BridgeBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "align_bridge_bytes_total",
			Help: "PCM bytes streamed to the recognizer",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "align_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "align_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// JobStarted marks a job as running.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.ActiveJobs.Inc()
}

// JobFinished records a job reaching a final status.
func (m *Metrics) JobFinished(mode, status string) {
	if m == nil {
		return
	}
	m.ActiveJobs.Dec()
	m.Jobs.WithLabelValues(mode, status).Inc()
}

// RecordSuccessRate records the success rate of a completed alignment.
func (m *Metrics) RecordSuccessRate(percent int) {
	if m == nil {
		return
	}
	m.SuccessRate.Observe(float64(percent))
}

// RecordSession records one finished recognition session.
func (m *Metrics) RecordSession(structure string, seconds float64) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(structure).Inc()
	m.SessionDuration.Observe(seconds)
}

// RecordUtterance counts one recognized utterance.
func (m *Metrics) RecordUtterance() {
	if m == nil {
		return
	}
	m.Utterances.Inc()
}

// AddBridgeBytes counts PCM bytes written to a streaming bridge.
func (m *Metrics) AddBridgeBytes(n int) {
	if m == nil {
		return
	}
	m.BridgeBytes.Add(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
