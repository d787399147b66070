package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records the daemon's ledger operation activity.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	batchSize  *prometheus.HistogramVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// Metrics returns the lazily-initialised ledger metrics registry.
func Metrics() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nyl",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Total ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nyl",
				Subsystem: "ledger",
				Name:      "failures_total",
				Help:      "Total ledger operation failures segmented by operation and error code.",
			}, []string{"operation", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nyl",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Ledger operation latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nyl",
				Subsystem: "ledger",
				Name:      "batch_size",
				Help:      "Batch sizes observed on advance and reduce.",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.failures,
			ledgerRegistry.latency,
			ledgerRegistry.batchSize,
		)
	})
	return ledgerRegistry
}

// ObserveOperation records one completed ledger operation.
func (m *LedgerMetrics) ObserveOperation(operation string, duration time.Duration, errCode string) {
	if m == nil {
		return
	}
	outcome := "ok"
	if errCode != "" {
		outcome = "error"
		m.failures.WithLabelValues(operation, errCode).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveBatchSize records the size of an advance or reduce batch.
func (m *LedgerMetrics) ObserveBatchSize(operation string, size int) {
	if m == nil {
		return
	}
	m.batchSize.WithLabelValues(operation).Observe(float64(size))
}
