// Package metrics provides Prometheus metrics for the catalog server
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the catalog server
type Metrics struct {
	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Document store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	RecordsTotal           prometheus.Gauge
	SamplesTotal           prometheus.Gauge

	// Catalog operation metrics
	LookupsTotal        prometheus.Counter
	EnumerationsTotal   prometheus.Counter
	SearchQueriesTotal  prometheus.Counter
	RecordsCreatedTotal prometheus.Counter
	RecordsDeletedTotal prometheus.Counter

	// Payload metrics
	PayloadsAttachedTotal prometheus.Counter
	PayloadBytesWritten   prometheus.Counter
	PayloadBytesRead      prometheus.Counter

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	// HTTP request metrics
	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xascat_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xascat_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xascat_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Document store metrics
	m.StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xascat_store_operations_total",
			Help: "Total number of document store operations",
		},
		[]string{"operation", "status"},
	)

	m.StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xascat_store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.RecordsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xascat_records_total",
			Help: "Total number of catalog records",
		},
	)

	m.SamplesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xascat_samples_total",
			Help: "Total number of registered samples",
		},
	)

	// Catalog operation metrics
	m.LookupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xascat_lookups_total",
			Help: "Total number of record lookups",
		},
	)

	m.EnumerationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xascat_enumerations_total",
			Help: "Total number of hierarchy enumerations",
		},
	)

	m.SearchQueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xascat_search_queries_total",
			Help: "Total number of search queries",
		},
	)

	m.RecordsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xascat_records_created_total",
			Help: "Total number of records created",
		},
	)

	m.RecordsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xascat_records_deleted_total",
			Help: "Total number of records deleted",
		},
	)

	// Payload metrics
	m.PayloadsAttachedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xascat_payloads_attached_total",
			Help: "Total number of payloads attached to records",
		},
	)

	m.PayloadBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xascat_payload_bytes_written_total",
			Help: "Total payload bytes written to the blob store",
		},
	)

	m.PayloadBytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xascat_payload_bytes_read_total",
			Help: "Total payload bytes served from the blob store",
		},
	)

	// Server metrics
	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xascat_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime periodically updates the server uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request with its status
func (m *Metrics) RecordHTTPRequest(route string, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordStoreOperation records a document store operation
func (m *Metrics) RecordStoreOperation(operation string, status string, duration time.Duration) {
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateCatalogStats updates record and sample counts
func (m *Metrics) UpdateCatalogStats(recordCount, sampleCount int64) {
	m.RecordsTotal.Set(float64(recordCount))
	m.SamplesTotal.Set(float64(sampleCount))
}
