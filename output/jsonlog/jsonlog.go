package jsonlog

import (
	"context"
	"encoding/json"
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
const SinkName = "jsonlog"

// Config holds configuration for the JSON Lines sink
type Config struct {
	Dir            string
	FilePrefix     string
	FlushInterval  time.Duration
	FlushThreshold int

	// StrictDecode skips frames that fail to decode instead of writing
	// fallback records for them.
	StrictDecode bool
}

// DefaultConfig returns default configuration for the JSON Lines sink
func DefaultConfig() Config {
	return Config{
		Dir:            "logs",
		FilePrefix:     "mav",
		FlushInterval:  time.Second,
		FlushThreshold: 64,
	}
}

// Deps holds runtime dependencies for the JSON Lines sink
type Deps struct {
	Config   Config
	Registry *metric.Registry
	Logger   *slog.Logger
}

// Metrics holds Prometheus metrics for the JSON Lines sink
type Metrics struct {
	recordsWritten prometheus.Counter
	bytesWritten   prometheus.Counter
	decodeErrors   prometheus.Counter
	writeErrors    prometheus.Counter
}

func newMetrics(registry *metric.Registry) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "jsonlog",
			Name:      "records_written_total",
			Help:      "Records written to the JSONL file",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "jsonlog",
			Name:      "bytes_written_total",
			Help:      "Bytes written to the JSONL file",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "jsonlog",
			Name:      "decode_errors_total",
			Help:      "Frames that failed MAVLink decoding",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mavrelay",
			Subsystem: "jsonlog",
			Name:      "write_errors_total",
			Help:      "JSONL write failures",
		}),
	}

	registry.RegisterCounter(SinkName, "records_written", metrics.recordsWritten)
	registry.RegisterCounter(SinkName, "bytes_written", metrics.bytesWritten)
	registry.RegisterCounter(SinkName, "decode_errors", metrics.decodeErrors)
	registry.RegisterCounter(SinkName, "write_errors", metrics.writeErrors)

	return metrics
}

// Output decodes frames and writes JSON Lines records.
type Output struct {
	config  Config
	logger  *slog.Logger
	decoder *mavlink.Decoder

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

	recordsWritten atomic.Int64
	bytesWritten   atomic.Int64
	decodeErrors   atomic.Int64
	errorCount     atomic.Int64
	lastActivity   atomic.Value // stores time.Time

	metrics *Metrics
}

// Ensure Output implements all required interfaces
var _ component.Discoverable = (*Output)(nil)
var _ component.LifecycleComponent = (*Output)(nil)

// New creates the JSON Lines sink.
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
		decoder: mavlink.NewDecoder(cfg.StrictDecode),
		buffer:  make([][]byte, 0, cfg.FlushThreshold),
		metrics: newMetrics(deps.Registry),
	}
	o.lastActivity.Store(time.Time{})
	return o
}

// Name identifies the sink to the router.
func (o *Output) Name() string { return SinkName }

// Path returns the JSONL file path for this run.
func (o *Output) Path() string {
	o.fileMu.Lock()
	defer o.fileMu.Unlock()
	return o.path
}

// Meta returns component metadata
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        SinkName,
		Type:        "output",
		Description: "JSON Lines structured log of decoded telemetry",
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
			Name:        "jsonl_file",
			Direction:   component.DirectionOutput,
			Required:    true,
			Description: "per-run JSON Lines log file",
			Config: component.FilePort{
				Path:    o.config.Dir,
				Pattern: o.config.FilePrefix + "_*.jsonl",
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
	records := o.recordsWritten.Load()
	bytes := o.bytesWritten.Load()
	lastActivity, _ := o.lastActivity.Load().(time.Time)

	var recordsPerSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(o.startTime).Seconds(); uptime > 0 {
		recordsPerSecond = float64(records) / uptime
		bytesPerSecond = float64(bytes) / uptime
	}
	if records > 0 {
		errorRate = float64(o.errorCount.Load()) / float64(records)
	}

	return component.FlowMetrics{
		MessagesPerSecond: recordsPerSecond,
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

	name := fmt.Sprintf("%s_%s.jsonl", o.config.FilePrefix, timestamp.FileStamp(time.Now()))
	path := filepath.Join(o.config.Dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644) // #nosec G304 -- path built from validated config
	if err != nil {
		return errors.WrapFatal(err, SinkName, "Start", "open jsonl file")
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

	o.logger.Info("JSON log started", "path", path,
		"strict_decode", o.config.StrictDecode)

	return nil
}

// Handle decodes one frame and buffers its record.
func (o *Output) Handle(_ context.Context, frame mavlink.RawFrame) error {
	if o.failed.Load() || !o.running.Load() {
		return errors.ErrSinkStopped
	}

	var record mavlink.LogRecord
	msg, err := o.decoder.Decode(frame.Data)
	if err != nil {
		o.decodeErrors.Add(1)
		if o.metrics != nil {
			o.metrics.decodeErrors.Inc()
		}
		if o.config.StrictDecode {
			return fmt.Errorf("strict decode: %w", err)
		}
		record = mavlink.FallbackRecord(frame)
	} else {
		record = mavlink.NewLogRecord(frame, msg)
	}

	line, err := json.Marshal(record)
	if err != nil {
		o.errorCount.Add(1)
		return errors.Wrap(err, SinkName, "Handle", "record marshaling")
	}

	o.bufferMu.Lock()
	o.buffer = append(o.buffer, line)
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

// flush writes buffered lines to the file. The first error fails the sink.
func (o *Output) flush() {
	o.bufferMu.Lock()
	if len(o.buffer) == 0 {
		o.bufferMu.Unlock()
		return
	}
	lines := o.buffer
	o.buffer = make([][]byte, 0, o.config.FlushThreshold)
	o.bufferMu.Unlock()

	o.fileMu.Lock()
	defer o.fileMu.Unlock()

	if o.file == nil || o.failed.Load() {
		o.errorCount.Add(int64(len(lines)))
		return
	}

	for _, line := range lines {
		n, err := o.file.Write(append(line, '\n'))
		if err != nil {
			o.failStop(err)
			return
		}
		o.recordsWritten.Add(1)
		o.bytesWritten.Add(int64(n))
		if o.metrics != nil {
			o.metrics.recordsWritten.Inc()
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

	o.logger.Error("JSON log write failed, sink stopped", "path", o.path, "error", cause)

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
			o.logger.Warn("jsonl sync failed", "error", err, "path", o.path)
		}
		if err := o.file.Close(); err != nil {
			o.logger.Warn("jsonl close failed", "error", err, "path", o.path)
		}
		o.file = nil
	}
	o.fileMu.Unlock()

	o.logger.Info("JSON log stopped",
		"records_written", o.recordsWritten.Load(),
		"decode_errors", o.decodeErrors.Load())

	return nil
}
