// Package metrics provides Prometheus metrics for cubechat.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all cubechat metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Dialogue turns
	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec

	// LLM extraction
	ExtractionsTotal    *prometheus.CounterVec
	ExtractionDuration  *prometheus.HistogramVec
	ExtractionAttempts  *prometheus.HistogramVec

	// Constraint resolution
	ResolutionsTotal   *prometheus.CounterVec
	ResolutionDuration *prometheus.HistogramVec
	AmbiguitiesTotal   prometheus.Counter

	// Member similarity search
	MemberLookupsTotal   *prometheus.CounterVec
	MemberLookupDuration *prometheus.HistogramVec

	// Data API execution
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ResultRowsCount   prometheus.Histogram

	// Embedding operations
	EmbeddingOperationsTotal   *prometheus.CounterVec
	EmbeddingOperationDuration *prometheus.HistogramVec

	// Session storage
	SessionsActive    prometheus.Gauge
	StorageSizeBytes  prometheus.Gauge
	StorageOperations *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cubechat"
	}

	m := &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of dialogue turns by classification and outcome",
			},
			[]string{"type", "outcome"},
		),
		TurnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Dialogue turn processing duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"type"},
		),

		ExtractionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extractions_total",
				Help:      "Total number of LLM extraction calls",
			},
			[]string{"task", "status"},
		),
		ExtractionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_duration_seconds",
				Help:      "LLM extraction call duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"task"},
		),
		ExtractionAttempts: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_attempts",
				Help:      "Number of attempts an extraction call needed",
				Buckets:   []float64{1, 2, 3, 4, 5, 10},
			},
			[]string{"task"},
		),

		ResolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of constraint resolution passes",
			},
			[]string{"status"},
		),
		ResolutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolution_duration_seconds",
				Help:      "Constraint resolution duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"cube"},
		),
		AmbiguitiesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_ambiguities_total",
				Help:      "Total member matches below the similarity floor",
			},
		),

		MemberLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "member_lookups_total",
				Help:      "Total number of member similarity lookups",
			},
			[]string{"cube", "status"},
		),
		MemberLookupDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "member_lookup_duration_seconds",
				Help:      "Member similarity lookup duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
			},
			[]string{"cube"},
		),

		ExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of data API executions",
			},
			[]string{"cube", "status"},
		),
		ExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Data API execution duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"cube"},
		),
		ResultRowsCount: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "result_rows_count",
				Help:      "Number of rows returned by data API executions",
				Buckets:   []float64{0, 1, 10, 50, 100, 500, 1000, 10000},
			},
		),

		EmbeddingOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_operations_total",
				Help:      "Total number of embedding operations",
			},
			[]string{"provider", "status"},
		),
		EmbeddingOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "embedding_operation_duration_seconds",
				Help:      "Embedding operation duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"provider"},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of sessions currently stored",
			},
		),
		StorageSizeBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "storage_size_bytes",
				Help:      "Total session storage size in bytes",
			},
		),
		StorageOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_operations_total",
				Help:      "Total number of session storage operations",
			},
			[]string{"operation", "status"},
		),
	}

	return m
}

var defaultMetrics *Metrics

// Default returns the default metrics instance, creating it if needed.
func Default() *Metrics {
	if defaultMetrics == nil {
		defaultMetrics = New("cubechat")
	}
	return defaultMetrics
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTurn records a processed dialogue turn.
func (m *Metrics) RecordTurn(turnType, outcome string, duration float64) {
	m.TurnsTotal.WithLabelValues(turnType, outcome).Inc()
	m.TurnDuration.WithLabelValues(turnType).Observe(duration)
}

// RecordExtraction records one LLM extraction call and how many
// provider attempts it took.
func (m *Metrics) RecordExtraction(task string, attempts int, success bool, duration float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ExtractionsTotal.WithLabelValues(task, status).Inc()
	m.ExtractionDuration.WithLabelValues(task).Observe(duration)
	m.ExtractionAttempts.WithLabelValues(task).Observe(float64(attempts))
}

// RecordResolution records a constraint resolution pass.
func (m *Metrics) RecordResolution(cube string, success bool, duration float64, ambiguities int) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ResolutionsTotal.WithLabelValues(status).Inc()
	m.ResolutionDuration.WithLabelValues(cube).Observe(duration)
	if ambiguities > 0 {
		m.AmbiguitiesTotal.Add(float64(ambiguities))
	}
}

// RecordMemberLookup records a member similarity lookup.
func (m *Metrics) RecordMemberLookup(cube string, success bool, duration float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.MemberLookupsTotal.WithLabelValues(cube, status).Inc()
	m.MemberLookupDuration.WithLabelValues(cube).Observe(duration)
}

// RecordExecution records a data API execution.
func (m *Metrics) RecordExecution(cube string, success bool, duration float64, rows int) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ExecutionsTotal.WithLabelValues(cube, status).Inc()
	m.ExecutionDuration.WithLabelValues(cube).Observe(duration)
	m.ResultRowsCount.Observe(float64(rows))
}

// RecordEmbeddingOperation records an embedding operation.
func (m *Metrics) RecordEmbeddingOperation(provider string, success bool, duration float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.EmbeddingOperationsTotal.WithLabelValues(provider, status).Inc()
	m.EmbeddingOperationDuration.WithLabelValues(provider).Observe(duration)
}

// RecordStorageOperation records a session storage operation.
func (m *Metrics) RecordStorageOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.StorageOperations.WithLabelValues(operation, status).Inc()
}

// SetSessionsActive sets the number of stored sessions.
func (m *Metrics) SetSessionsActive(count int64) {
	m.SessionsActive.Set(float64(count))
}

// SetStorageSizeBytes sets the session storage size in bytes.
func (m *Metrics) SetStorageSizeBytes(size int64) {
	m.StorageSizeBytes.Set(float64(size))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
