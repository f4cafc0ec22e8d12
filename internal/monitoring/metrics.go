package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a reconstruction process.
type Metrics struct {
	// Pipeline metrics
	ChunksProcessed *prometheus.CounterVec
	ChannelDuration *prometheus.HistogramVec
	IterationsTotal *prometheus.CounterVec
	PipelinesActive prometheus.Gauge
	PipelineAborts  *prometheus.CounterVec

	// Bulk read metrics
	BulkReadDuration prometheus.Histogram
	BulkReadWorkers  prometheus.Gauge

	// Memory metrics
	PoolElements prometheus.Gauge
}

// NewMetrics creates a metrics collector registered with reg. Tests pass a
// private registry to avoid duplicate registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChunksProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tomostream_chunks_processed_total",
				Help: "Chunks fully flushed to the destination array",
			},
			[]string{"pass"},
		),
		ChannelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tomostream_channel_operation_seconds",
				Help:    "Duration of enqueued channel operations",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"pass", "channel"},
		),
		IterationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tomostream_pipeline_iterations_total",
				Help: "Pipeline iterations including prologue and drain",
			},
			[]string{"pass"},
		),
		PipelinesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tomostream_pipelines_active",
				Help: "Pipelines currently running",
			},
		),
		PipelineAborts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tomostream_pipeline_aborts_total",
				Help: "Aborted pipeline runs by failing channel",
			},
			[]string{"pass", "channel"},
		),
		BulkReadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tomostream_bulk_read_seconds",
				Help:    "Wall time of the initial parallel bulk read",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
			},
		),
		BulkReadWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tomostream_bulk_read_workers",
				Help: "Worker goroutines in the current bulk read",
			},
		),
		PoolElements: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tomostream_pool_elements",
				Help: "Elements held by device and pinned buffer pools",
			},
		),
	}
}

// NewNopMetrics creates a collector on a throwaway registry, for tests and
// callers that do not scrape.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// ObserveChannel records one channel operation duration.
func (m *Metrics) ObserveChannel(pass, channel string, start time.Time) {
	m.ChannelDuration.WithLabelValues(pass, channel).Observe(time.Since(start).Seconds())
}
