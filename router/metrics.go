package router

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrelay/metric"
)

// Metrics holds Prometheus metrics for the fan-out router
type Metrics struct {
	framesDispatched prometheus.Counter
	bytesDispatched  prometheus.Counter
	framesDropped    *prometheus.CounterVec
	framesDelivered  *prometheus.CounterVec
	sinkErrors       *prometheus.CounterVec
}

// newMetrics creates and registers router metrics
func newMetrics(registry *metric.Registry) *Metrics {
	// Return nil if no registry provided (nil input = nil feature pattern)
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		framesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "router",
			Name:      "frames_dispatched_total",
			Help:      "Total frames entering the fan-out",
		}),
		bytesDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "router",
			Name:      "bytes_dispatched_total",
			Help:      "Total frame bytes entering the fan-out",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "router",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped per sink because its queue was full",
		}, []string{"sink"}),
		framesDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "router",
			Name:      "frames_delivered_total",
			Help:      "Frames handed to each sink",
		}, []string{"sink"}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "router",
			Name:      "sink_errors_total",
			Help:      "Errors returned by each sink's Handle",
		}, []string{"sink"}),
	}

	registry.RegisterCounter("router", "frames_dispatched", metrics.framesDispatched)
	registry.RegisterCounter("router", "bytes_dispatched", metrics.bytesDispatched)
	registry.RegisterCounterVec("router", "frames_dropped", metrics.framesDropped)
	registry.RegisterCounterVec("router", "frames_delivered", metrics.framesDelivered)
	registry.RegisterCounterVec("router", "sink_errors", metrics.sinkErrors)

	return metrics
}
