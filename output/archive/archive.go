package archive

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/mavrelay/component"
	"github.com/c360/mavrelay/errors"
	"github.com/c360/mavrelay/mavlink"
	"github.com/c360/mavrelay/metric"
	"github.com/c360/mavrelay/pkg/timestamp"
)

// SinkName identifies this sink to the router and in metrics.
const SinkName = "archive"

// Config holds configuration for the tlog archive sink
type Config struct {
	Dir            string
	FilePrefix     string
	FlushInterval  time.Duration
	FlushThreshold int
}

// DefaultConfig returns default configuration for the archive sink
func DefaultConfig() Config {
	return Config{
		Dir:            "logs",
		FilePrefix:     "mav",
		FlushInterval:  time.Second,
		FlushThreshold: 64,
	}
}

// Deps holds runtime dependencies for the archive sink
type Deps struct {
	Config   Config
	Registry *metric.Registry
	Logger   *slog.Logger
}

// Output writes frames to a per-run tlog file.
type Output struct {
	config Config
	logger *slog.Logger

	file   *os.File
	path   string
	fileMu sync.Mutex

	buffer   [][]byte
	bufferMu sync.Mutex

	shutdown  chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
	failed    atomic.Bool
	startTime time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup

	framesWritten atomic.Int64
	bytesWritten  atomic.Int64
	errorCount    atomic.Int64
	lastActivity  atomic.Value // stores time.Time

	metrics *Metrics
}

// Metrics holds Prometheus metrics for the archive sink
type Metrics struct {
	framesWritten prometheus.Counter
	bytesWritten  prometheus.Counter
	writeErrors   prometheus.Counter
}

func newMetrics(registry *metric.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		framesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "archive",
			Name:      "frames_written_total",
			Help:      "Frames written to the tlog file",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "archive",
			Name:      "bytes_written_total",
			Help:      "Bytes written to the tlog file including record headers",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "archive",
			Name:      "write_errors_total",
			Help:      "tlog write failures",
		}),
	}

	registry.RegisterCounter(SinkName, "frames_written", metrics.framesWritten)
	registry.RegisterCounter(SinkName, "bytes_written", metrics.bytesWritten)
	registry.RegisterCounter(SinkName, "write_errors", metrics.writeErrors)

	return metrics
}

// New creates the archive sink.
func New(deps Deps) *Output {
	cfg := deps.Config
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 64
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", SinkName)
	}

	o := &Output{
		config:  cfg,
		logger:  logger,
		buffer:  make([][]byte, 0, cfg.FlushThreshold),
		metrics: newMetrics(deps.Registry),
	}
	o.lastActivity.Store(time.Time{})
	return o
}

// Ensure Output implements all required interfaces
var _ component.Discoverable = (*Output)(nil)
var _ component.LifecycleComponent = (*Output)(nil)

// Name identifies the sink to the router.
func (o *Output) Name() string { return SinkName }

// Path returns the tlog file path for this run.
func (o *Output) Path() string {
	o.fileMu.Lock()
	defer o.fileMu.Unlock()
	return o.path
}

// EncodeRecord builds one tlog record: big-endian microsecond timestamp
// followed by the raw frame.
func EncodeRecord(frame mavlink.RawFrame) []byte {
	record := make([]byte, 8+len(frame.Data))
	binary.BigEndian.PutUint64(record, uint64(frame.Timestamp))
	copy(record[8:], frame.Data)
	return record
}

// Meta returns component metadata
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        SinkName,
		Type:        "output",
		Description: "binary tlog archive of every relayed frame",
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
			Name:        "tlog_file",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "per-run tlog archive file",
			Config: component.FilePort{
				Path:    o.config.Dir,
				Pattern: o.config.FilePrefix + "_*.tlog",
			},
		},
	}
}

// Health returns the current health status
func (o *Output) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    o.running.Load() && !o.failed.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(o.errorCount.Load()),
		Uptime:     time.Since(o.startTime),
	}
}

// DataFlow returns current data flow metrics
func (o *Output) DataFlow() component.FlowMetrics {
	frames := o.framesWritten.Load()
	bytes := o.bytesWritten.Load()
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

// Initialize creates the output directory
func (o *Output) Initialize() error {
	if o.config.Dir == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, SinkName, "Initialize", "dir is required")
	}
	if err := os.MkdirAll(o.config.Dir, 0o755); err != nil {
		return errors.WrapFatal(err, SinkName, "Initialize", "create output directory")
	}
	return nil
}

// Start opens the per-run file and begins the flush loop
func (o *Output) Start(_ context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running.Load() {
		return nil
	}

	name := fmt.Sprintf("%s_%s.tlog", o.config.FilePrefix, timestamp.FileStamp(time.Now()))
	path := filepath.Join(o.config.Dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644) // #nosec G304 -- path built from validated config
	if err != nil {
		return errors.WrapFatal(err, SinkName, "Start", "open tlog file")
	}

	o.fileMu.Lock()
	o.file = file
	o.path = path
	o.fileMu.Unlock()

	o.shutdown = make(chan struct{})
	o.running.Store(true)
	o.startTime = time.Now()

	o.wg.Add(1)
	go o.flushLoop()

	o.logger.Info("Archive started", "path", path,
		"flush_interval", o.config.FlushInterval,
		"flush_threshold", o.config.FlushThreshold)

	return nil
}

// Handle buffers one frame for the archive. After a write failure the sink
// rejects everything.
func (o *Output) Handle(_ context.Context, frame mavlink.RawFrame) error {
	if o.failed.Load() {
		return errors.ErrSinkStopped
	}
	if !o.running.Load() {
		return errors.ErrSinkStopped
	}

	record := EncodeRecord(frame)

	o.bufferMu.Lock()
	o.buffer = append(o.buffer, record)
	shouldFlush := len(o.buffer) >= o.config.FlushThreshold
	o.bufferMu.Unlock()

	o.lastActivity.Store(time.Now())

	if shouldFlush {
		o.flush()
	}
	if o.failed.Load() {
		return errors.ErrWriteFailed
	}
	return nil
}

// flushLoop periodically flushes the buffer
func (o *Output) flushLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ticker.C:
			o.flush()
		}
	}
}

// flush writes buffered records to the file. The first error fails the sink.
func (o *Output) flush() {
	o.bufferMu.Lock()
	if len(o.buffer) == 0 {
		o.bufferMu.Unlock()
		return
	}
	records := o.buffer
	o.buffer = make([][]byte, 0, o.config.FlushThreshold)
	o.bufferMu.Unlock()

	o.fileMu.Lock()
	defer o.fileMu.Unlock()

	if o.file == nil || o.failed.Load() {
		o.errorCount.Add(int64(len(records)))
		return
	}

	for _, record := range records {
		n, err := o.file.Write(record)
		if err != nil {
			o.failStop(err)
			return
		}
		o.framesWritten.Add(1)
		o.bytesWritten.Add(int64(n))
		if o.metrics != nil {
			o.metrics.framesWritten.Inc()
			o.metrics.bytesWritten.Add(float64(n))
		}
	}
}

// failStop marks the sink dead. Called with fileMu held.
func (o *Output) failStop(cause error) {
	if o.failed.Swap(true) {
		return
	}

	o.errorCount.Add(1)
	if o.metrics != nil {
		o.metrics.writeErrors.Inc()
	}

	o.logger.Error("Archive write failed, sink stopped", "path", o.path, "error", cause)

	_ = o.file.Close()
	o.file = nil
}

// Stop flushes what is buffered and closes the file
func (o *Output) Stop(timeout time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running.Load() {
		return nil
	}
	o.running.Store(false)

	o.closeOnce.Do(func() { close(o.shutdown) })

	waitCh := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout),
			SinkName, "Stop", "flush loop shutdown")
	}

	o.flush()

	o.fileMu.Lock()
	if o.file != nil {
		if err := o.file.Sync(); err != nil {
			o.logger.Warn("tlog sync failed", "error", err, "path", o.path)
		}
		if err := o.file.Close(); err != nil {
			o.logger.Warn("tlog close failed", "error", err, "path", o.path)
		}
		o.file = nil
	}
	o.fileMu.Unlock()

	o.logger.Info("Archive stopped",
		"frames_written", o.framesWritten.Load(),
		"bytes_written", o.bytesWritten.Load())

	return nil
}
