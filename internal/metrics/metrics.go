// Package metrics provides Prometheus metrics for the Lake Coalescer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the Lake Coalescer.
type Metrics struct {
	// Tranche metrics
	TranchesProcessed prometheus.Counter
	TranchesFailed    prometheus.Counter

	// Batch metrics
	BatchesCoalesced *prometheus.CounterVec
	BatchesFailed    *prometheus.CounterVec
	BatchesSkipped   *prometheus.CounterVec

	// Object metrics
	ObjectsMerged   *prometheus.CounterVec
	ObjectsDeleted  *prometheus.CounterVec
	ObjectsSkipped  prometheus.Counter
	BytesMerged     *prometheus.CounterVec

	// Timing metrics
	BatchDuration   prometheus.Histogram
	TrancheDuration prometheus.Histogram

	// Pipeline metrics
	InFlightUnits prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "lake_coalescer"
	}

	topicLabels := []string{"topic"}

	m := &Metrics{
		TranchesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tranches_processed_total",
			Help:      "Total number of listing tranches processed",
		}),
		TranchesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tranches_failed_total",
			Help:      "Total number of tranches with at least one failed batch",
		}),
		BatchesCoalesced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_coalesced_total",
			Help:      "Total number of batches merged and deleted successfully",
		}, topicLabels),
		BatchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_failed_total",
			Help:      "Total number of batches that failed to coalesce",
		}, topicLabels),
		BatchesSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_skipped_total",
			Help:      "Total number of single-object batches skipped as no-ops",
		}, topicLabels),
		ObjectsMerged: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_merged_total",
			Help:      "Total number of source objects folded into merged objects",
		}, topicLabels),
		ObjectsDeleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_deleted_total",
			Help:      "Total number of source objects deleted after a merge",
		}, topicLabels),
		ObjectsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_skipped_total",
			Help:      "Total number of listed objects skipped for malformed keys",
		}),
		BytesMerged: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_merged_total",
			Help:      "Total bytes written into merged objects",
		}, topicLabels),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time taken to coalesce one batch",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		TrancheDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tranche_duration_seconds",
			Help:      "Time taken to process one tranche end to end",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		InFlightUnits: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_units",
			Help:      "Units of work currently executing on the pool",
		}),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncTranchesProcessed increments the processed-tranche counter.
func (m *Metrics) IncTranchesProcessed() {
	m.TranchesProcessed.Inc()
}

// IncTranchesFailed increments the failed-tranche counter.
func (m *Metrics) IncTranchesFailed() {
	m.TranchesFailed.Inc()
}

// IncBatchesCoalesced increments the coalesced-batch counter for a topic.
func (m *Metrics) IncBatchesCoalesced(topic string) {
	m.BatchesCoalesced.WithLabelValues(topic).Inc()
}

// IncBatchesFailed increments the failed-batch counter for a topic.
func (m *Metrics) IncBatchesFailed(topic string) {
	m.BatchesFailed.WithLabelValues(topic).Inc()
}

// IncBatchesSkipped increments the skipped-batch counter for a topic.
func (m *Metrics) IncBatchesSkipped(topic string) {
	m.BatchesSkipped.WithLabelValues(topic).Inc()
}

// AddObjectsMerged adds to the merged-object counter for a topic.
func (m *Metrics) AddObjectsMerged(topic string, count float64) {
	m.ObjectsMerged.WithLabelValues(topic).Add(count)
}

// AddObjectsDeleted adds to the deleted-object counter for a topic.
func (m *Metrics) AddObjectsDeleted(topic string, count float64) {
	m.ObjectsDeleted.WithLabelValues(topic).Add(count)
}

// AddObjectsSkipped adds to the malformed-key skip counter.
func (m *Metrics) AddObjectsSkipped(count float64) {
	m.ObjectsSkipped.Add(count)
}

// AddBytesMerged adds to the merged-bytes counter for a topic.
func (m *Metrics) AddBytesMerged(topic string, bytes float64) {
	m.BytesMerged.WithLabelValues(topic).Add(bytes)
}

// ObserveBatchDuration records the duration of one batch coalesce.
func (m *Metrics) ObserveBatchDuration(seconds float64) {
	m.BatchDuration.Observe(seconds)
}

// ObserveTrancheDuration records the duration of one tranche.
func (m *Metrics) ObserveTrancheDuration(seconds float64) {
	m.TrancheDuration.Observe(seconds)
}

// SetInFlightUnits records the number of units currently executing.
func (m *Metrics) SetInFlightUnits(count float64) {
	m.InFlightUnits.Set(count)
}
