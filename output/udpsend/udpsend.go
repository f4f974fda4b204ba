package udpsend

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrelay/component"
	"github.com/c360/mavrelay/errors"
	"github.com/c360/mavrelay/mavlink"
	"github.com/c360/mavrelay/metric"
)

// SinkName identifies this sink to the router and in metrics.
const SinkName = "forward"

// Config holds configuration for the forward sink
type Config struct {
	// Endpoints are host:port addresses that receive every frame.
	Endpoints []string
}

// Deps holds runtime dependencies for the forward sink
type Deps struct {
	Config   Config
	Registry *metric.Registry
	Logger   *slog.Logger
}

// Metrics holds Prometheus metrics for the forward sink
type Metrics struct {
	framesSent prometheus.Counter
	bytesSent  prometheus.Counter
	sendErrors *prometheus.CounterVec
}

func newMetrics(registry *metric.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "forward",
			Name:      "frames_sent_total",
			Help:      "Frames handed to the forward sink",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "forward",
			Name:      "bytes_sent_total",
			Help:      "Bytes successfully written to downstream endpoints",
		}),
		sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "forward",
			Name:      "send_errors_total",
			Help:      "Failed sends by endpoint",
		}, []string{"endpoint"}),
	}

	registry.RegisterCounter(SinkName, "frames_sent", metrics.framesSent)
	registry.RegisterCounter(SinkName, "bytes_sent", metrics.bytesSent)
	registry.RegisterCounterVec(SinkName, "send_errors", metrics.sendErrors)

	return metrics
}

// endpoint is one downstream destination with its connected socket.
type endpoint struct {
	addr   string
	conn   *net.UDPConn
	sent   atomic.Int64
	errors atomic.Int64
}

// Output forwards raw frames to every configured endpoint.
type Output struct {
	config Config
	logger *slog.Logger

	endpoints []*endpoint

	running      atomic.Bool
	startTime    time.Time
	mu           sync.RWMutex
	framesSent   atomic.Int64
	bytesSent    atomic.Int64
	errorCount   atomic.Int64
	lastActivity atomic.Value // stores time.Time

	metrics *Metrics
}

// Ensure Output implements all required interfaces
var _ component.Discoverable = (*Output)(nil)
var _ component.LifecycleComponent = (*Output)(nil)

// New creates the forward sink.
func New(deps Deps) *Output {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", SinkName)
	}

	o := &Output{
		config:  deps.Config,
		logger:  logger,
		metrics: newMetrics(deps.Registry),
	}
	o.lastActivity.Store(time.Time{})
	return o
}

// Name identifies the sink to the router.
func (o *Output) Name() string { return SinkName }

// Meta returns component metadata
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        SinkName,
		Type:        "output",
		Description: "raw UDP forwarding to ground control stations",
		Version:     "1.0.0",
	}
}

// InputPorts returns configured input port definitions
func (o *Output) InputPorts() []component.Port {
	return nil
}

// OutputPorts returns configured output port definitions
func (o *Output) OutputPorts() []component.Port {
	ports := make([]component.Port, 0, len(o.config.Endpoints))
	for i, addr := range o.config.Endpoints {
		host, port := splitEndpoint(addr)
		ports = append(ports, component.Port{
			Name:        fmt.Sprintf("endpoint_%d", i),
			Direction:   component.DirectionOutput,
			Required:    false,
			Description: "downstream UDP telemetry consumer",
			Config: component.NetworkPort{
				Protocol: "udp",
				Host:     host,
				Port:     port,
			},
		})
	}
	return ports
}

func splitEndpoint(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	var port int
	_, _ = fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

// Health returns the current health status
func (o *Output) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    o.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(o.errorCount.Load()),
		Uptime:     time.Since(o.startTime),
	}
}

// DataFlow returns current data flow metrics
func (o *Output) DataFlow() component.FlowMetrics {
	frames := o.framesSent.Load()
	bytes := o.bytesSent.Load()
	lastActivity, _ := o.lastActivity.Load().(time.Time)

	var framesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(o.startTime).Seconds(); uptime > 0 {
		framesPerSecond = float64(frames) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if frames > 0 {
		errorRate = float64(o.errorCount.Load()) / float64(frames)
	}

	return component.FlowMetrics{
		MessagesPerSecond: framesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the endpoint list
func (o *Output) Initialize() error {
	if len(o.config.Endpoints) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, SinkName, "Initialize",
			"at least one endpoint is required")
	}
	for _, addr := range o.config.Endpoints {
		if _, err := net.ResolveUDPAddr("udp", addr); err != nil {
			return errors.WrapInvalid(err, SinkName, "Initialize",
				fmt.Sprintf("endpoint %q", addr))
		}
	}
	return nil
}

// Start connects a socket per endpoint
func (o *Output) Start(_ context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running.Load() {
		return nil
	}

	endpoints := make([]*endpoint, 0, len(o.config.Endpoints))
	for _, addr := range o.config.Endpoints {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			closeEndpoints(endpoints)
			return errors.WrapFatal(err, SinkName, "Start", fmt.Sprintf("resolve %q", addr))
		}
		conn, err := net.DialUDP("udp", nil, udpAddr)
		if err != nil {
			closeEndpoints(endpoints)
			return errors.WrapFatal(err, SinkName, "Start", fmt.Sprintf("dial %q", addr))
		}
		endpoints = append(endpoints, &endpoint{addr: addr, conn: conn})
	}

	o.endpoints = endpoints
	o.running.Store(true)
	o.startTime = time.Now()

	o.logger.Info("Forwarding started", "endpoints", o.config.Endpoints)
	return nil
}

func closeEndpoints(endpoints []*endpoint) {
	for _, ep := range endpoints {
		_ = ep.conn.Close()
	}
}

// Handle sends the frame to every endpoint. A failed endpoint is counted,
// never returned, so one dead GCS cannot degrade the others.
func (o *Output) Handle(_ context.Context, frame mavlink.RawFrame) error {
	if !o.running.Load() {
		return errors.ErrSinkStopped
	}

	o.framesSent.Add(1)
	if o.metrics != nil {
		o.metrics.framesSent.Inc()
	}
	o.lastActivity.Store(time.Now())

	for _, ep := range o.endpoints {
		n, err := ep.conn.Write(frame.Data)
		if err != nil {
			ep.errors.Add(1)
			o.errorCount.Add(1)
			if o.metrics != nil {
				o.metrics.sendErrors.WithLabelValues(ep.addr).Inc()
			}
			continue
		}
		ep.sent.Add(1)
		o.bytesSent.Add(int64(n))
		if o.metrics != nil {
			o.metrics.bytesSent.Add(float64(n))
		}
	}
	return nil
}

// EndpointStats reports per-endpoint delivery counters.
type EndpointStats struct {
	Addr   string
	Sent   int64
	Errors int64
}

// Stats returns per-endpoint counters.
func (o *Output) Stats() []EndpointStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	stats := make([]EndpointStats, 0, len(o.endpoints))
	for _, ep := range o.endpoints {
		stats = append(stats, EndpointStats{
			Addr:   ep.addr,
			Sent:   ep.sent.Load(),
			Errors: ep.errors.Load(),
		})
	}
	return stats
}

// Stop closes the endpoint sockets
func (o *Output) Stop(_ time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running.Load() {
		return nil
	}
	o.running.Store(false)

	for _, ep := range o.endpoints {
		if err := ep.conn.Close(); err != nil {
			o.logger.Warn("endpoint close failed", "endpoint", ep.addr, "error", err)
		}
	}

	o.logger.Info("Forwarding stopped",
		"frames_sent", o.framesSent.Load(),
		"send_errors", o.errorCount.Load())

	return nil
}
