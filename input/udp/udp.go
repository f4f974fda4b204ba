package udp

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
	"github.com/c360/mavrelay/pkg/retry"
	"github.com/c360/mavrelay/pkg/timestamp"
)

// Dispatcher receives every frame the listener extracts.
type Dispatcher interface {
	Dispatch(frame mavlink.RawFrame)
}

// Metrics holds Prometheus metrics for the ingress listener
type Metrics struct {
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	framesExtracted prometheus.Counter
	syncLosses      prometheus.Counter
	socketErrors    prometheus.Counter
	lastActivity    prometheus.Gauge
}

// newMetrics creates and registers listener metrics
func newMetrics(registry *metric.Registry, port int) *Metrics {
	// Return nil if no registry provided (nil input = nil feature pattern)
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "ingress",
			Name:      "packets_received_total",
			Help:      "Total UDP datagrams received",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "ingress",
			Name:      "bytes_received_total",
			Help:      "Total bytes received from upstream",
		}),
		framesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "ingress",
			Name:      "frames_extracted_total",
			Help:      "MAVLink frames extracted from datagrams",
		}),
		syncLosses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "ingress",
			Name:      "sync_losses_total",
			Help:      "Times datagram bytes had to be skipped to find a frame boundary",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "ingress",
			Name:      "socket_errors_total",
			Help:      "Socket read errors encountered",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mavrelay",
			Subsystem: "ingress",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of last received packet",
		}),
	}

	serviceName := fmt.Sprintf("ingress_%d", port)
	registry.RegisterCounter(serviceName, "packets_received", metrics.packetsReceived)
	registry.RegisterCounter(serviceName, "bytes_received", metrics.bytesReceived)
	registry.RegisterCounter(serviceName, "frames_extracted", metrics.framesExtracted)
	registry.RegisterCounter(serviceName, "sync_losses", metrics.syncLosses)
	registry.RegisterCounter(serviceName, "socket_errors", metrics.socketErrors)
	registry.RegisterGauge(serviceName, "last_activity", metrics.lastActivity)

	return metrics
}

// ListenerConfig holds configuration for the ingress listener
type ListenerConfig struct {
	Bind            string
	Port            int
	ReadBufferBytes int

	// FailureThreshold consecutive non-timeout receive errors within
	// FailureWindow declare the upstream unreachable.
	FailureThreshold int
	FailureWindow    time.Duration
}

// DefaultConfig returns sensible defaults for the ingress listener
func DefaultConfig() ListenerConfig {
	return ListenerConfig{
		Bind:             "0.0.0.0",
		Port:             14550,
		ReadBufferBytes:  2048,
		FailureThreshold: 3,
		FailureWindow:    5 * time.Second,
	}
}

// ListenerDeps holds runtime dependencies for the ingress listener
type ListenerDeps struct {
	Config     ListenerConfig
	Dispatcher Dispatcher
	Registry   *metric.Registry
	Logger     *slog.Logger

	// Fatal receives the terminal error when the upstream is declared
	// unreachable. The listener stops itself after reporting.
	Fatal chan<- error
}

// Listener binds the upstream UDP socket and feeds frames to the dispatcher.
type Listener struct {
	config     ListenerConfig
	dispatcher Dispatcher
	fatal      chan<- error
	logger     *slog.Logger

	retryConfig retry.Config

	shutdown  chan struct{}
	done      chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	conn      *net.UDPConn

	framesExtracted atomic.Int64
	bytesReceived   atomic.Int64
	errorCount      atomic.Int64
	lastActivity    atomic.Value // stores time.Time

	metrics *Metrics
}

// Ensure Listener implements all required interfaces
var _ component.Discoverable = (*Listener)(nil)
var _ component.LifecycleComponent = (*Listener)(nil)

// NewListener creates the ingress listener.
func NewListener(deps ListenerDeps) *Listener {
	cfg := deps.Config
	if cfg.Bind == "" {
		cfg.Bind = "0.0.0.0"
	}
	if cfg.ReadBufferBytes <= 0 {
		cfg.ReadBufferBytes = 2048
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 5 * time.Second
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "ingress", "port", cfg.Port)
	}

	l := &Listener{
		config:      cfg,
		dispatcher:  deps.Dispatcher,
		fatal:       deps.Fatal,
		logger:      logger,
		retryConfig: retry.DefaultConfig(),
		startTime:   time.Now(),
		metrics:     newMetrics(deps.Registry, cfg.Port),
	}
	l.lastActivity.Store(time.Time{})
	return l
}

// Meta returns the component metadata
func (l *Listener) Meta() component.Metadata {
	return component.Metadata{
		Name:        fmt.Sprintf("ingress-%d", l.config.Port),
		Type:        "input",
		Description: fmt.Sprintf("UDP ingress listener on %s:%d", l.config.Bind, l.config.Port),
		Version:     "1.0.0",
	}
}

// InputPorts returns the input ports for this component
func (l *Listener) InputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "udp_socket",
			Direction:   component.DirectionInput,
			Required:    true,
			Description: fmt.Sprintf("UDP socket listening on %s:%d", l.config.Bind, l.config.Port),
			Config: component.NetworkPort{
				Protocol: "udp",
				Host:     l.config.Bind,
				Port:     l.config.Port,
			},
		},
	}
}

// OutputPorts returns the output ports for this component
func (l *Listener) OutputPorts() []component.Port {
	return nil
}

// Health returns the current health status of the component
func (l *Listener) Health() component.HealthStatus {
	l.mu.RLock()
	connected := l.conn != nil
	l.mu.RUnlock()

	return component.HealthStatus{
		Healthy:    l.running.Load() && connected,
		LastCheck:  time.Now(),
		ErrorCount: int(l.errorCount.Load()),
		Uptime:     time.Since(l.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (l *Listener) DataFlow() component.FlowMetrics {
	frames := l.framesExtracted.Load()
	bytes := l.bytesReceived.Load()
	lastActivity, _ := l.lastActivity.Load().(time.Time)

	var framesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(l.startTime).Seconds(); uptime > 0 {
		framesPerSecond = float64(frames) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if frames > 0 {
		errorRate = float64(l.errorCount.Load()) / float64(frames)
	}

	return component.FlowMetrics{
		MessagesPerSecond: framesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates configuration but does not bind the socket
func (l *Listener) Initialize() error {
	if l.config.Port < 0 || l.config.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("invalid port %d", l.config.Port),
			"ingress", "Initialize", "port validation")
	}
	if l.dispatcher == nil {
		return errors.WrapInvalid(fmt.Errorf("nil dispatcher"),
			"ingress", "Initialize", "dispatcher validation")
	}
	return nil
}

// Start binds the socket and begins the read loop
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return nil // Already running, idempotent
	}

	l.shutdown = make(chan struct{})
	l.done = make(chan struct{})

	if err := retry.Do(ctx, l.retryConfig, l.bindSocket); err != nil {
		l.cleanupUnlocked()
		return errors.WrapTransient(err, "ingress", "Start", "socket binding")
	}

	l.running.Store(true)
	l.startTime = time.Now()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer close(l.done)
		l.readLoop(ctx)
	}()

	l.logger.Info("Ingress listening", "bind", l.config.Bind, "port", l.config.Port)
	return nil
}

// bindSocket creates and binds the UDP socket
func (l *Listener) bindSocket() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", l.config.Bind, l.config.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address %s:%d: %w", l.config.Bind, l.config.Port, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP port %d: %w", l.config.Port, err)
	}

	// Large OS socket buffer so telemetry bursts survive scheduler hiccups
	const socketBufferSize = 2 * 1024 * 1024
	if err := conn.SetReadBuffer(socketBufferSize); err != nil {
		l.logger.Warn("Could not set UDP buffer size",
			"buffer_size", socketBufferSize,
			"error", err)
	}

	l.conn = conn
	return nil
}

// Stop gracefully stops the listener within the timeout
func (l *Listener) Stop(timeout time.Duration) error {
	if !l.running.Load() {
		return nil
	}
	l.running.Store(false)

	l.mu.Lock()
	if l.shutdown != nil {
		select {
		case <-l.shutdown:
		default:
			close(l.shutdown)
		}
	}
	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.mu.Unlock()

	select {
	case <-l.done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"ingress", "Stop", "graceful shutdown")
	}

	l.cleanup()
	return nil
}

func (l *Listener) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupUnlocked()
}

func (l *Listener) cleanupUnlocked() {
	if l.shutdown != nil {
		select {
		case <-l.shutdown:
		default:
			close(l.shutdown)
		}
		l.shutdown = nil
	}
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
}

// Port returns the bound UDP port. Useful when the configured port is 0 and
// the OS picked one.
func (l *Listener) Port() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.conn != nil {
		if addr, ok := l.conn.LocalAddr().(*net.UDPAddr); ok {
			return addr.Port
		}
	}
	return l.config.Port
}

// readLoop receives datagrams until shutdown or until the upstream is
// declared unreachable.
func (l *Listener) readLoop(ctx context.Context) {
	readBuf := make([]byte, 65536)

	var consecutiveFailures int
	var firstFailure time.Time

	for l.running.Load() {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		default:
		}

		l.mu.RLock()
		conn := l.conn
		l.mu.RUnlock()
		if conn == nil {
			return
		}

		// Short deadline so shutdown is noticed promptly
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, _, err := conn.ReadFromUDP(readBuf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Timeouts are the idle case, not failures
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-l.shutdown:
				return
			default:
			}

			l.errorCount.Add(1)
			if l.metrics != nil {
				l.metrics.socketErrors.Inc()
			}

			now := time.Now()
			if consecutiveFailures == 0 || now.Sub(firstFailure) > l.config.FailureWindow {
				consecutiveFailures = 0
				firstFailure = now
			}
			consecutiveFailures++

			l.logger.Warn("Receive error", "error", err, "consecutive", consecutiveFailures)

			if consecutiveFailures >= l.config.FailureThreshold {
				l.reportFatal(err)
				return
			}
			continue
		}
		consecutiveFailures = 0

		now := time.Now()
		l.bytesReceived.Add(int64(n))
		l.lastActivity.Store(now)

		if l.metrics != nil {
			l.metrics.packetsReceived.Inc()
			l.metrics.bytesReceived.Add(float64(n))
			l.metrics.lastActivity.Set(float64(now.Unix()))
		}

		l.extractFrames(readBuf[:n])
	}
}

// extractFrames splits one datagram into MAVLink frames and dispatches each.
// Bytes before a recognizable magic are skipped.
func (l *Listener) extractFrames(data []byte) {
	ts := timestamp.Now()

	for len(data) > 0 {
		total, err := mavlink.FrameLength(data)
		if err != nil {
			skip := nextMagicOffset(data)
			if skip < 0 {
				return
			}
			if l.metrics != nil {
				l.metrics.syncLosses.Inc()
			}
			data = data[skip:]
			continue
		}

		if total > len(data) {
			// Tail of a frame the datagram does not contain. UDP does
			// not fragment MAVLink frames in practice, so drop it.
			if l.metrics != nil {
				l.metrics.syncLosses.Inc()
			}
			return
		}

		frame := make([]byte, total)
		copy(frame, data[:total])

		l.framesExtracted.Add(1)
		if l.metrics != nil {
			l.metrics.framesExtracted.Inc()
		}

		l.dispatcher.Dispatch(mavlink.RawFrame{
			Data:      frame,
			Timestamp: ts,
			Direction: mavlink.DirectionRX,
		})

		data = data[total:]
	}
}

// nextMagicOffset finds the next possible frame start after data[0], or -1.
func nextMagicOffset(data []byte) int {
	for i := 1; i < len(data); i++ {
		if data[i] == mavlink.MagicV1 || data[i] == mavlink.MagicV2 {
			return i
		}
	}
	return -1
}

// reportFatal declares the upstream unreachable.
func (l *Listener) reportFatal(cause error) {
	err := errors.WrapFatal(
		fmt.Errorf("%d consecutive receive failures within %v: %w",
			l.config.FailureThreshold, l.config.FailureWindow, cause),
		"ingress", "readLoop", "upstream receive")

	l.logger.Error("Upstream unreachable, stopping", "error", err)
	l.running.Store(false)

	if l.fatal != nil {
		select {
		case l.fatal <- err:
		default:
		}
	}
}
