package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrelay/metric"
)

// bufferMetrics holds Prometheus metrics for buffer operations.
type bufferMetrics struct {
	writes prometheus.Counter
	reads  prometheus.Counter
	drops  prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

// newBufferMetrics creates and registers buffer metrics with the provided registry.
func newBufferMetrics(registry *metric.Registry, prefix string) (*bufferMetrics, error) {
	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mavrelay",
			Subsystem:   "queue",
			Name:        "writes_total",
			ConstLabels: prometheus.Labels{"path": prefix},
			Help:        "Total number of frames enqueued on this path",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mavrelay",
			Subsystem:   "queue",
			Name:        "reads_total",
			ConstLabels: prometheus.Labels{"path": prefix},
			Help:        "Total number of frames dequeued on this path",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "mavrelay",
			Subsystem:   "queue",
			Name:        "drops_total",
			ConstLabels: prometheus.Labels{"path": prefix},
			Help:        "Total number of frames dropped due to queue overflow",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mavrelay",
			Subsystem:   "queue",
			Name:        "depth",
			ConstLabels: prometheus.Labels{"path": prefix},
			Help:        "Current number of frames queued on this path",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "mavrelay",
			Subsystem:   "queue",
			Name:        "utilization",
			ConstLabels: prometheus.Labels{"path": prefix},
			Help:        "Queue utilization as a fraction (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(prefix, "queue_writes", m.writes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_reads", m.reads); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "queue_drops", m.drops); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_depth", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "queue_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}

func (m *bufferMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}

func (m *bufferMetrics) recordDrop() {
	m.drops.Inc()
}

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
