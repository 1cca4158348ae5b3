package facade

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// newMetrics registers the façade collectors on reg. A nil reg creates them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recordstore_operations_total",
			Help: "Façade operations by kind, verb and result (ok or error kind).",
		}, []string{"kind", "verb", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recordstore_operation_duration_seconds",
			Help:    "Façade operation latency, guard checks included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "verb"}),
	}
}

func (m *metrics) record(o route, result string, elapsed time.Duration) {
	m.operations.WithLabelValues(string(o.kind), string(o.verb), result).Inc()
	m.duration.WithLabelValues(string(o.kind), string(o.verb)).Observe(elapsed.Seconds())
}
