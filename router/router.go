package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/mavrelay/component"
	"github.com/c360/mavrelay/errors"
	"github.com/c360/mavrelay/mavlink"
	"github.com/c360/mavrelay/metric"
	"github.com/c360/mavrelay/pkg/buffer"
)

// path is the per-sink delivery lane: a bounded queue plus the worker that
// drains it. One worker per sink keeps delivery order FIFO.
type path struct {
	sink   Sink
	queue  buffer.Buffer[mavlink.RawFrame]
	notify chan struct{} // 1-slot wakeup, never blocks the dispatcher

	delivered atomic.Int64
	dropped   atomic.Int64
	errors    atomic.Int64
}

// wake nudges the path worker without ever blocking.
func (p *path) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Config holds router tuning.
type Config struct {
	// QueueCapacity bounds each sink's queue. When full, the oldest
	// queued frame for that sink is dropped.
	QueueCapacity int

	// Grace bounds queue draining during Stop.
	Grace time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 1024,
		Grace:         5 * time.Second,
	}
}

// Deps holds runtime dependencies for the router.
type Deps struct {
	Config   Config
	Registry *metric.Registry
	Logger   *slog.Logger
}

// Router fans frames out to sinks over independent bounded queues.
type Router struct {
	config Config
	logger *slog.Logger

	paths []*path

	shutdown  chan struct{}
	running   atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup

	framesIn     atomic.Int64
	bytesIn      atomic.Int64
	lastActivity atomic.Value // stores time.Time

	metrics *Metrics
}

// Ensure Router implements all required interfaces
var _ component.Discoverable = (*Router)(nil)
var _ component.LifecycleComponent = (*Router)(nil)

// New creates a router delivering to the given sinks.
func New(deps Deps, sinks ...Sink) (*Router, error) {
	cfg := deps.Config
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultConfig().Grace
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "router")
	}

	r := &Router{
		config:  cfg,
		logger:  logger,
		metrics: newMetrics(deps.Registry),
	}
	r.lastActivity.Store(time.Time{})

	for _, s := range sinks {
		p := &path{
			sink:   s,
			notify: make(chan struct{}, 1),
		}

		opts := []buffer.Option[mavlink.RawFrame]{
			buffer.WithOverflowPolicy[mavlink.RawFrame](buffer.DropOldest),
			buffer.WithDropCallback[mavlink.RawFrame](func(mavlink.RawFrame) {
				p.dropped.Add(1)
				if r.metrics != nil {
					r.metrics.framesDropped.WithLabelValues(p.sink.Name()).Inc()
				}
			}),
		}
		if deps.Registry != nil {
			opts = append(opts, buffer.WithMetrics[mavlink.RawFrame](deps.Registry, s.Name()))
		}

		q, err := buffer.NewCircularBuffer(cfg.QueueCapacity, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "router", "New",
				fmt.Sprintf("queue for sink %s", s.Name()))
		}
		p.queue = q

		r.paths = append(r.paths, p)
	}

	return r, nil
}

// Meta returns the component metadata
func (r *Router) Meta() component.Metadata {
	return component.Metadata{
		Name:        "router",
		Type:        "router",
		Description: fmt.Sprintf("fan-out router delivering to %d sinks", len(r.paths)),
		Version:     "1.0.0",
	}
}

// InputPorts returns the input ports for this component
func (r *Router) InputPorts() []component.Port {
	return nil
}

// OutputPorts returns the output ports for this component
func (r *Router) OutputPorts() []component.Port {
	return nil
}

// Health returns the current health status of the component
func (r *Router) Health() component.HealthStatus {
	var errorCount int64
	for _, p := range r.paths {
		errorCount += p.errors.Load()
	}

	return component.HealthStatus{
		Healthy:    r.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(errorCount),
		Uptime:     time.Since(r.startTime),
	}
}

// DataFlow returns the current data flow metrics
func (r *Router) DataFlow() component.FlowMetrics {
	frames := r.framesIn.Load()
	bytes := r.bytesIn.Load()
	lastActivity, _ := r.lastActivity.Load().(time.Time)

	var framesPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(r.startTime).Seconds(); uptime > 0 {
		framesPerSecond = float64(frames) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}

	var errorCount int64
	for _, p := range r.paths {
		errorCount += p.errors.Load()
	}
	if frames > 0 {
		errorRate = float64(errorCount) / float64(frames)
	}

	return component.FlowMetrics{
		MessagesPerSecond: framesPerSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// Initialize validates the router before start
func (r *Router) Initialize() error {
	if len(r.paths) == 0 {
		return errors.WrapInvalid(fmt.Errorf("no sinks configured"),
			"router", "Initialize", "sink validation")
	}
	return nil
}

// Start launches one worker per sink
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return nil // Already running, idempotent
	}

	r.shutdown = make(chan struct{})
	r.running.Store(true)
	r.startTime = time.Now()

	for _, p := range r.paths {
		r.wg.Add(1)
		go func(p *path) {
			defer r.wg.Done()
			r.deliverLoop(ctx, p)
		}(p)
	}

	r.logger.Info("Router started", "sinks", len(r.paths),
		"queue_capacity", r.config.QueueCapacity)

	return nil
}

// Dispatch fans one frame out to every sink queue. It never blocks: a full
// queue drops its own oldest frame and the dispatcher moves on. Each sink
// gets its own copy of the frame bytes.
func (r *Router) Dispatch(frame mavlink.RawFrame) {
	if !r.running.Load() {
		return
	}

	r.framesIn.Add(1)
	r.bytesIn.Add(int64(frame.Len()))
	r.lastActivity.Store(time.Now())

	if r.metrics != nil {
		r.metrics.framesDispatched.Inc()
		r.metrics.bytesDispatched.Add(float64(frame.Len()))
	}

	for _, p := range r.paths {
		// Write handles overflow by evicting the oldest queued frame,
		// which fires the drop callback
		_ = p.queue.Write(frame.Clone())
		p.wake()
	}
}

// deliverLoop drains one sink's queue until shutdown, then drains what is
// left within the grace period.
func (r *Router) deliverLoop(ctx context.Context, p *path) {
	const maxBatchSize = 100

	for {
		select {
		case <-ctx.Done():
			r.drainRemaining(ctx, p)
			return
		case <-r.shutdown:
			r.drainRemaining(ctx, p)
			return
		case <-p.notify:
			r.deliverBatches(ctx, p, maxBatchSize)
		}
	}
}

// deliverBatches empties the queue as it stands, batch by batch.
func (r *Router) deliverBatches(ctx context.Context, p *path, batchSize int) {
	for {
		frames := p.queue.ReadBatch(batchSize)
		if len(frames) == 0 {
			return
		}
		for _, frame := range frames {
			r.deliver(ctx, p, frame)
		}
	}
}

// drainRemaining flushes queued frames during shutdown, bounded by the
// grace period.
func (r *Router) drainRemaining(ctx context.Context, p *path) {
	deadline := time.Now().Add(r.config.Grace)

	for !p.queue.IsEmpty() {
		if time.Now().After(deadline) {
			r.logger.Warn("Drain grace period expired",
				"sink", p.sink.Name(), "remaining", p.queue.Size())
			return
		}
		frames := p.queue.ReadBatch(100)
		for _, frame := range frames {
			r.deliver(ctx, p, frame)
		}
	}
}

func (r *Router) deliver(ctx context.Context, p *path, frame mavlink.RawFrame) {
	if err := p.sink.Handle(ctx, frame); err != nil {
		p.errors.Add(1)
		if r.metrics != nil {
			r.metrics.sinkErrors.WithLabelValues(p.sink.Name()).Inc()
		}
		return
	}

	p.delivered.Add(1)
	if r.metrics != nil {
		r.metrics.framesDelivered.WithLabelValues(p.sink.Name()).Inc()
	}
}

// Stop drains the queues and stops the workers within the timeout.
func (r *Router) Stop(timeout time.Duration) error {
	if !r.running.Load() {
		return nil
	}
	r.running.Store(false)

	r.mu.Lock()
	if r.shutdown != nil {
		select {
		case <-r.shutdown:
		default:
			close(r.shutdown)
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("stop timeout after %v", timeout),
			"router", "Stop", "worker shutdown")
	}

	for _, p := range r.paths {
		_ = p.queue.Close()
	}

	r.logger.Info("Router stopped")
	return nil
}

// SinkStats reports per-sink delivery counters.
type SinkStats struct {
	Name      string
	Delivered int64
	Dropped   int64
	Errors    int64
	Queued    int
}

// Stats returns a snapshot of every sink's counters.
func (r *Router) Stats() []SinkStats {
	stats := make([]SinkStats, 0, len(r.paths))
	for _, p := range r.paths {
		stats = append(stats, SinkStats{
			Name:      p.sink.Name(),
			Delivered: p.delivered.Load(),
			Dropped:   p.dropped.Load(),
			Errors:    p.errors.Load(),
			Queued:    p.queue.Size(),
		})
	}
	return stats
}
