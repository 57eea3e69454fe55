// Package metrics exposes Prometheus metrics for the upload queue.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"gpx-track-server/pkg/queue"
)

// QueueMetrics tracks upload queue activity. It implements queue.Sink so it
// can be attached to a processor next to the log and board sinks.
//
// All metrics use the gpx_queue_ prefix.
type QueueMetrics struct {
	// EnqueuedTotal counts files accepted into the queue
	EnqueuedTotal prometheus.Counter

	// ItemsTotal counts completed files by result ("success", "failed")
	ItemsTotal *prometheus.CounterVec

	// BatchesTotal counts completed batches
	BatchesTotal prometheus.Counter

	// BatchSize tracks how many files each batch carried
	BatchSize prometheus.Histogram

	// DrainDuration tracks how long a drain ran from first enqueue to empty
	DrainDuration prometheus.Histogram

	// Pending is the current queue depth
	Pending prometheus.Gauge

	// Active is 1 while a drain runs
	Active prometheus.Gauge

	// NoticesTotal counts enqueue attempts that carried nothing
	NoticesTotal prometheus.Counter
}

var _ queue.Sink = (*QueueMetrics)(nil)

// NewQueueMetrics creates and registers queue metrics with reg.
// Panics if registration fails (expected during initialization only).
func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	m := &QueueMetrics{
		EnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpx_queue_enqueued_total",
			Help: "Total files accepted into the upload queue",
		}),
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpx_queue_items_total",
				Help: "Total files processed by result",
			},
			[]string{"result"},
		),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpx_queue_batches_total",
			Help: "Total batches completed",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpx_queue_batch_size",
			Help:    "Number of files per batch",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		DrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpx_queue_drain_duration_seconds",
			Help:    "Duration of a queue drain in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpx_queue_pending",
			Help: "Files waiting in the upload queue",
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpx_queue_active",
			Help: "1 while the queue is draining",
		}),
		NoticesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpx_queue_notices_total",
			Help: "Total enqueue attempts rejected with a user notice",
		}),
	}

	reg.MustRegister(
		m.EnqueuedTotal,
		m.ItemsTotal,
		m.BatchesTotal,
		m.BatchSize,
		m.DrainDuration,
		m.Pending,
		m.Active,
		m.NoticesTotal,
	)

	return m
}

func (m *QueueMetrics) Notice(string) {
	if m == nil {
		return
	}
	m.NoticesTotal.Inc()
}

func (m *QueueMetrics) Started(queue.Progress) {
	if m == nil {
		return
	}
	m.Active.Set(1)
}

func (m *QueueMetrics) Enqueued(n int, p queue.Progress) {
	if m == nil {
		return
	}
	m.EnqueuedTotal.Add(float64(n))
	m.Pending.Set(float64(p.Pending))
}

func (m *QueueMetrics) ItemDone(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failed"
	}
	m.ItemsTotal.WithLabelValues(result).Inc()
}

func (m *QueueMetrics) BatchDone(size int, p queue.Progress) {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
	m.BatchSize.Observe(float64(size))
	m.Pending.Set(float64(p.Pending))
}

func (m *QueueMetrics) Drained(p queue.Progress) {
	if m == nil {
		return
	}
	m.Active.Set(0)
	m.Pending.Set(0)
	m.DrainDuration.Observe(p.Elapsed().Seconds())
}
