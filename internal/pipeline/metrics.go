package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the pipeline counters. Create once with NewMetrics and share
// across importers; a nil *Metrics disables collection.
type Metrics struct {
	SnapshotsCompleted prometheus.Counter
	SnapshotsFailed    prometheus.Counter
	RecordsPersisted   prometheus.Counter
	ChunkRetries       prometheus.Counter
	ImportDuration     prometheus.Histogram
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SnapshotsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msgvault",
			Subsystem: "pipeline",
			Name:      "snapshots_completed_total",
			Help:      "Snapshots imported to completion",
		}),
		SnapshotsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msgvault",
			Subsystem: "pipeline",
			Name:      "snapshots_failed_total",
			Help:      "Snapshot imports that ended in error status",
		}),
		RecordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msgvault",
			Subsystem: "pipeline",
			Name:      "records_persisted_total",
			Help:      "Records confirmed written by the worker pool",
		}),
		ChunkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "msgvault",
			Subsystem: "pipeline",
			Name:      "chunk_retries_total",
			Help:      "Chunk write retries after storage contention",
		}),
		ImportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "msgvault",
			Subsystem: "pipeline",
			Name:      "import_duration_seconds",
			Help:      "End-to-end import duration per snapshot",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	registry.MustRegister(
		m.SnapshotsCompleted,
		m.SnapshotsFailed,
		m.RecordsPersisted,
		m.ChunkRetries,
		m.ImportDuration,
	)
	return m
}
