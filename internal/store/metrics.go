package store

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics registers store metrics with the given registry. Call once
// during initialization; returns the store for chaining.
func (s *Store) RegisterMetrics(registry *prometheus.Registry) *Store {
	s.metricsRecordsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "msgvault",
		Subsystem: "store",
		Name:      "records_written_total",
		Help:      "Total message records written to the record store",
	})

	s.metricsBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "msgvault",
		Subsystem: "store",
		Name:      "batches_committed_total",
		Help:      "Total batch transactions committed",
	})

	s.metricsConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "msgvault",
		Subsystem: "store",
		Name:      "txn_conflicts_total",
		Help:      "Total Badger transaction conflicts surfaced as contention",
	})

	sizeFn := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "msgvault",
		Subsystem: "store",
		Name:      "size_bytes",
		Help:      "Record store size on disk (LSM + value log)",
	}, func() float64 {
		lsm, vlog := s.db.Size()
		return float64(lsm + vlog)
	})

	registry.MustRegister(
		s.metricsRecordsWritten,
		s.metricsBatches,
		s.metricsConflicts,
		sizeFn,
	)
	return s
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
