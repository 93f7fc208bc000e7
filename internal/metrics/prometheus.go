package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ingestion metrics
	BatchesIngested prometheus.Counter
	BatchErrors     prometheus.Counter
	MalformedHashes prometheus.Counter
	HashesUpserted  prometheus.Counter

	// Generation metrics
	GenerationRuns     *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	PartitionsWritten  prometheus.Counter
	SlicesWritten      prometheus.Counter

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates metrics registered on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates metrics registered on the given registerer;
// tests pass a fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BatchesIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "revocation_batches_ingested_total",
				Help: "Total number of upstream batches ingested",
			},
		),

		BatchErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "revocation_batch_errors_total",
				Help: "Total number of upstream batches skipped due to errors",
			},
		),

		MalformedHashes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "revocation_malformed_hashes_total",
				Help: "Total number of malformed hash entries skipped",
			},
		),

		HashesUpserted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "revocation_hashes_upserted_total",
				Help: "Total number of hash records written",
			},
		),

		GenerationRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revocation_generation_runs_total",
				Help: "Total number of generation cycles by result",
			},
			[]string{"result"},
		),

		GenerationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "revocation_generation_duration_seconds",
				Help:    "Duration of generation cycles",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),

		PartitionsWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "revocation_partitions_written_total",
				Help: "Total number of partition rows written",
			},
		),

		SlicesWritten: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "revocation_slices_written_total",
				Help: "Total number of slice rows written",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "revocation_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "revocation_request_duration_seconds",
				Help:    "Duration of HTTP request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}
