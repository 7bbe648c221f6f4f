// Package metrics exposes Prometheus instrumentation for synchronization runs.
//
// Collectors are registered with the default registry on import. The HTTP
// surface serves them on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fsindex"

var (
	// documentsIndexed counts documents accepted by the backend.
	// Labels: index
	documentsIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "documents_indexed_total",
		Help:      "Documents written to the backend by bulk flushes",
	}, []string{"index"})

	// flushes counts bulk flushes by outcome.
	// Labels: index, status (success, error)
	flushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "flushes_total",
		Help:      "Bulk flushes by outcome",
	}, []string{"index", "status"})

	// flushDuration measures the time spent in one bulk write.
	// Labels: index
	flushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "flush_duration_seconds",
		Help:      "Duration of a single bulk write",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"index"})

	// documentsDeleted counts stale documents removed by reconciliation.
	// Labels: index
	documentsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "documents_deleted_total",
		Help:      "Stale documents removed after a successful walk",
	}, []string{"index"})

	// pathsSkipped counts paths skipped during a walk.
	// Labels: index, reason (excluded, vanished, unreadable)
	pathsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "paths_skipped_total",
		Help:      "Paths not indexed during a walk, by reason",
	}, []string{"index", "reason"})

	// runDuration measures complete runs by outcome.
	// Labels: index, status (success, error, cancelled)
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "run_duration_seconds",
		Help:      "Duration of a synchronization run",
		Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
	}, []string{"index", "status"})

	// lastEpoch is the epoch of the last successful run.
	// Labels: index
	lastEpoch = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_success_epoch_seconds",
		Help:      "Epoch of the last successful run",
	}, []string{"index"})
)

// Skip reasons
const (
	ReasonExcluded   = "excluded"
	ReasonVanished   = "vanished"
	ReasonUnreadable = "unreadable"
)

// Run outcomes
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// RecordFlush records one bulk write of n documents.
func RecordFlush(index string, n int, took time.Duration, err error) {
	flushDuration.WithLabelValues(index).Observe(took.Seconds())
	if err != nil {
		flushes.WithLabelValues(index, StatusError).Inc()
		return
	}
	flushes.WithLabelValues(index, StatusSuccess).Inc()
	documentsIndexed.WithLabelValues(index).Add(float64(n))
}

// RecordDeleted records documents removed by reconciliation.
func RecordDeleted(index string, n int64) {
	documentsDeleted.WithLabelValues(index).Add(float64(n))
}

// RecordSkipped records a path that was not indexed.
func RecordSkipped(index, reason string) {
	pathsSkipped.WithLabelValues(index, reason).Inc()
}

// RecordRun records a finished run. epoch is only published for successful runs.
func RecordRun(index, status string, epoch int64, took time.Duration) {
	runDuration.WithLabelValues(index, status).Observe(took.Seconds())
	if status == StatusSuccess {
		lastEpoch.WithLabelValues(index).Set(float64(epoch))
	}
}
