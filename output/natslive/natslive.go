package natslive

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrelay/component"
	"github.com/c360/mavrelay/errors"
	"github.com/c360/mavrelay/mavlink"
	"github.com/c360/mavrelay/metric"
	"github.com/c360/mavrelay/natsclient"
	"github.com/c360/mavrelay/pkg/retry"
)

// SinkName identifies this sink to the router and in metrics.
const SinkName = "live"

// Config holds configuration for the live feed sink
type Config struct {
	URL     string
	Subject string
}

// DefaultConfig returns default configuration for the live feed sink
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Subject: "mavlink.live",
	}
}

// Deps holds runtime dependencies for the live feed sink
type Deps struct {
	Config Config

	// Client is optional; when nil one is created from Config.URL.
	Client   *natsclient.Client
	Registry *metric.Registry
	Logger   *slog.Logger
}

// Metrics holds Prometheus metrics for the live feed sink
type Metrics struct {
	recordsPublished prometheus.Counter
	recordsDropped   prometheus.Counter
	publishErrors    prometheus.Counter
}

func newMetrics(registry *metric.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		recordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "live",
			Name:      "records_published_total",
			Help:      "Records published to the live subject",
		}),
		recordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "live",
			Name:      "records_dropped_total",
			Help:      "Records dropped while the broker was unreachable",
		}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "live",
			Name:      "publish_errors_total",
			Help:      "Publish failures other than disconnection",
		}),
	}

	registry.RegisterCounter(SinkName, "records_published", metrics.recordsPublished)
	registry.RegisterCounter(SinkName, "records_dropped", metrics.recordsDropped)
	registry.RegisterCounter(SinkName, "publish_errors", metrics.publishErrors)

	return metrics
}

// Output publishes decoded frames to NATS.
type Output struct {
	config  Config
	logger  *slog.Logger
	client  *natsclient.Client
	decoder *mavlink.Decoder

	cancel    context.CancelFunc
	closeOnce sync.Once
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup

	recordsPublished atomic.Int64
	recordsDropped   atomic.Int64
	errorCount       atomic.Int64
	lastActivity     atomic.Value // stores time.Time

	metrics *Metrics
}

// Ensure Output implements all required interfaces
var _ component.Discoverable = (*Output)(nil)
var _ component.LifecycleComponent = (*Output)(nil)

// New creates the live feed sink.
func New(deps Deps) *Output {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", SinkName)
	}

	o := &Output{
		config:  deps.Config,
		logger:  logger,
		client:  deps.Client,
		decoder: mavlink.NewDecoder(false),
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
		Description: "live decoded telemetry feed over NATS",
		Version:     "1.0.0",
	}
}

// InputPorts returns configured input port definitions
func (o *Output) InputPorts() []component.Port {
	return nil
}

// OutputPorts returns configured output port definitions
func (o *Output) OutputPorts() []component.Port {
	return []component.Port{
		{
			Name:        "live_feed",
			Direction:   component.DirectionOutput,
			Required:    false,
			Description: "decoded telemetry records as JSON",
			Config: component.NATSPort{
				Subject: o.config.Subject,
			},
		},
	}
}

// Health returns the current health status
func (o *Output) Health() component.HealthStatus {
	status := component.HealthStatus{
		Healthy:    o.running.Load() && o.client != nil && o.client.IsHealthy(),
		LastCheck:  time.Now(),
		ErrorCount: int(o.errorCount.Load()),
		Uptime:     time.Since(o.startTime),
	}
	if o.running.Load() && !status.Healthy {
		status.LastError = "broker not connected"
	}
	return status
}

// DataFlow returns current data flow metrics
func (o *Output) DataFlow() component.FlowMetrics {
	records := o.recordsPublished.Load()
	lastActivity, _ := o.lastActivity.Load().(time.Time)

	var recordsPerSecond, errorRate float64
	if uptime := time.Since(o.startTime).Seconds(); uptime > 0 {
		recordsPerSecond = float64(records) / uptime
	}
	if records > 0 {
		errorRate = float64(o.errorCount.Load()) / float64(records)
	}

	return component.FlowMetrics{
		MessagesPerSecond: recordsPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the configuration and creates the client if needed
func (o *Output) Initialize() error {
	if o.config.Subject == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, SinkName, "Initialize", "subject is required")
	}

	if o.client == nil {
		if o.config.URL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, SinkName, "Initialize", "url is required")
		}
		client, err := natsclient.NewClient(o.config.URL,
			natsclient.WithName("mavrelay-live"))
		if err != nil {
			return errors.WrapInvalid(err, SinkName, "Initialize", "client creation")
		}
		o.client = client
	}

	return nil
}

// Start begins connecting to the broker in the background
func (o *Output) Start(_ context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running.Load() {
		return nil
	}
	if o.client == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, SinkName, "Start", "not initialized")
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.running.Store(true)
	o.startTime = time.Now()

	o.wg.Add(1)
	go o.connectLoop(ctx)

	o.logger.Info("Live feed started", "url", o.config.URL, "subject", o.config.Subject)
	return nil
}

// connectLoop keeps trying until the broker answers or the sink stops.
// Frames arriving in the meantime are dropped, not queued.
func (o *Output) connectLoop(ctx context.Context) {
	defer o.wg.Done()

	err := retry.Do(ctx, retry.Persistent(), func() error {
		return o.client.Connect(ctx)
	})
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("Live feed could not reach broker, feed disabled",
				"url", o.config.URL, "error", err)
		}
		return
	}

	o.logger.Info("Live feed connected", "url", o.config.URL)
}

// Handle decodes one frame and publishes its record. Disconnection drops the
// frame without error; the file sinks are the durable record.
func (o *Output) Handle(ctx context.Context, frame mavlink.RawFrame) error {
	if !o.running.Load() {
		return errors.ErrSinkStopped
	}

	if !o.client.IsHealthy() {
		o.drop()
		return nil
	}

	var record mavlink.LogRecord
	msg, err := o.decoder.Decode(frame.Data)
	if err != nil {
		record = mavlink.FallbackRecord(frame)
	} else {
		record = mavlink.NewLogRecord(frame, msg)
	}

	line, err := json.Marshal(record)
	if err != nil {
		o.errorCount.Add(1)
		return errors.Wrap(err, SinkName, "Handle", "record marshaling")
	}

	if err := o.client.Publish(ctx, o.config.Subject, line); err != nil {
		if stderrors.Is(err, natsclient.ErrNotConnected) || stderrors.Is(err, natsclient.ErrCircuitOpen) {
			o.drop()
			return nil
		}
		o.errorCount.Add(1)
		if o.metrics != nil {
			o.metrics.publishErrors.Inc()
		}
		return errors.WrapTransient(err, SinkName, "Handle", "publish")
	}

	o.recordsPublished.Add(1)
	o.lastActivity.Store(time.Now())
	if o.metrics != nil {
		o.metrics.recordsPublished.Inc()
	}
	return nil
}

func (o *Output) drop() {
	o.recordsDropped.Add(1)
	if o.metrics != nil {
		o.metrics.recordsDropped.Inc()
	}
}

// Stats reports publish and drop counters.
func (o *Output) Stats() (published, dropped int64) {
	return o.recordsPublished.Load(), o.recordsDropped.Load()
}

// Stop disconnects from the broker
func (o *Output) Stop(timeout time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running.Load() {
		return nil
	}
	o.running.Store(false)

	o.closeOnce.Do(func() {
		if o.cancel != nil {
			o.cancel()
		}
	})

	waitCh := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout),
			SinkName, "Stop", "connect loop shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.client.Close(ctx); err != nil {
		o.logger.Warn("broker close failed", "error", err)
	}

	o.logger.Info("Live feed stopped",
		"records_published", o.recordsPublished.Load(),
		"records_dropped", o.recordsDropped.Load())

	return nil
}
