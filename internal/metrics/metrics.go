// Package metrics exports scheduler and cache activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rpcbatch/internal/scheduler"
)

const namespace = "rpcbatch"

// Metrics implements scheduler.Observer
type Metrics struct {
	batchesFlushed    prometheus.Counter
	batchSize         prometheus.Histogram
	exchangeDuration  prometheus.Histogram
	transportFailures prometheus.Counter
	callsSettled      *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
}

var _ scheduler.Observer = (*Metrics)(nil)

// New creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		batchesFlushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "batches_flushed_total",
			Help:      "Number of batches handed to the transport",
		}),
		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "batch_size",
			Help:      "Number of calls per flushed batch",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		}),
		exchangeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "exchange_duration_seconds",
			Help:      "Duration of one batch exchange",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}),
		transportFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "failures_total",
			Help:      "Number of batch exchanges that failed outright",
		}),
		callsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "calls_settled_total",
			Help:      "Number of calls settled, by method and outcome",
		}, []string{"method", "outcome"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Number of cache lookups, by result",
		}, []string{"result"}),
	}
}

// ObserveFlush implements scheduler.Observer
func (m *Metrics) ObserveFlush(size int) {
	m.batchesFlushed.Inc()
	m.batchSize.Observe(float64(size))
}

// ObserveExchange implements scheduler.Observer
func (m *Metrics) ObserveExchange(_ int, elapsed time.Duration, err error) {
	m.exchangeDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.transportFailures.Inc()
	}
}

// ObserveSettle implements scheduler.Observer
func (m *Metrics) ObserveSettle(method string, outcome scheduler.Outcome) {
	m.callsSettled.WithLabelValues(method, string(outcome)).Inc()
}

// ObserveCache records a cache lookup
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
