package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/mavrelay/component"
	"github.com/c360/mavrelay/config"
	"github.com/c360/mavrelay/errors"
	"github.com/c360/mavrelay/health"
	"github.com/c360/mavrelay/input/udp"
	"github.com/c360/mavrelay/metric"
	"github.com/c360/mavrelay/output/archive"
	"github.com/c360/mavrelay/output/jsonlog"
	"github.com/c360/mavrelay/output/natslive"
	"github.com/c360/mavrelay/output/udpsend"
	"github.com/c360/mavrelay/router"
)

// Deps holds runtime dependencies for the relay.
type Deps struct {
	Config   *config.Config
	Registry *metric.Registry
	Logger   *slog.Logger
}

// sinkEntry pairs a sink with its lifecycle handle.
type sinkEntry struct {
	name     string
	sink     router.Sink
	life     component.LifecycleComponent
	optional bool
}

// Relay owns the pipeline: listener, router, sinks, and the metrics and
// health servers.
type Relay struct {
	config *config.Config
	logger *slog.Logger

	listener *udp.Listener
	router   *router.Router
	sinks    []sinkEntry

	metricsServer *metric.Server
	healthServer  *health.Server

	fatal     chan error
	running   atomic.Bool
	startTime time.Time
}

// New builds the pipeline from configuration. Nothing is bound or opened
// until Initialize and Start.
func New(deps Deps) (*Relay, error) {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Relay{
		config: cfg,
		logger: logger,
		fatal:  make(chan error, 1),
	}

	if cfg.Forward.Enabled {
		forward := udpsend.New(udpsend.Deps{
			Config:   udpsend.Config{Endpoints: cfg.Forward.Endpoints},
			Registry: deps.Registry,
			Logger:   logger.With("component", udpsend.SinkName),
		})
		r.sinks = append(r.sinks, sinkEntry{name: udpsend.SinkName, sink: forward, life: forward})
	}

	if cfg.Archive.Enabled {
		arch := archive.New(archive.Deps{
			Config: archive.Config{
				Dir:            cfg.Archive.Dir,
				FilePrefix:     cfg.Archive.FilePrefix,
				FlushInterval:  cfg.Archive.FlushInterval.Std(),
				FlushThreshold: cfg.Archive.FlushThreshold,
			},
			Registry: deps.Registry,
			Logger:   logger.With("component", archive.SinkName),
		})
		r.sinks = append(r.sinks, sinkEntry{name: archive.SinkName, sink: arch, life: arch})
	}

	if cfg.JSONLog.Enabled {
		jlog := jsonlog.New(jsonlog.Deps{
			Config: jsonlog.Config{
				Dir:            cfg.JSONLog.Dir,
				FilePrefix:     cfg.JSONLog.FilePrefix,
				FlushInterval:  cfg.JSONLog.FlushInterval.Std(),
				FlushThreshold: cfg.JSONLog.FlushThreshold,
				StrictDecode:   cfg.Decode.Strict,
			},
			Registry: deps.Registry,
			Logger:   logger.With("component", jsonlog.SinkName),
		})
		r.sinks = append(r.sinks, sinkEntry{name: jsonlog.SinkName, sink: jlog, life: jlog})
	}

	if cfg.Live.Enabled {
		live := natslive.New(natslive.Deps{
			Config: natslive.Config{
				URL:     cfg.Live.URL,
				Subject: cfg.Live.Subject,
			},
			Registry: deps.Registry,
			Logger:   logger.With("component", natslive.SinkName),
		})
		r.sinks = append(r.sinks, sinkEntry{name: natslive.SinkName, sink: live, life: live, optional: true})
	}

	if len(r.sinks) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("no sinks enabled"),
			"relay", "New", "sink configuration")
	}

	sinks := make([]router.Sink, 0, len(r.sinks))
	for _, entry := range r.sinks {
		sinks = append(sinks, entry.sink)
	}

	rt, err := router.New(router.Deps{
		Config: router.Config{
			QueueCapacity: cfg.Queue.Capacity,
			Grace:         cfg.Shutdown.Grace.Std(),
		},
		Registry: deps.Registry,
		Logger:   logger.With("component", "router"),
	}, sinks...)
	if err != nil {
		return nil, err
	}
	r.router = rt

	r.listener = udp.NewListener(udp.ListenerDeps{
		Config: udp.ListenerConfig{
			Bind:             cfg.Upstream.Host,
			Port:             cfg.Upstream.Port,
			ReadBufferBytes:  cfg.Upstream.ReadBufferBytes,
			FailureThreshold: cfg.Upstream.FailureThreshold,
			FailureWindow:    cfg.Upstream.FailureWindow.Std(),
		},
		Dispatcher: rt,
		Registry:   deps.Registry,
		Logger:     logger.With("component", "ingress"),
		Fatal:      r.fatal,
	})

	if cfg.Metrics.Enabled && deps.Registry != nil {
		r.metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, deps.Registry, logger)
	}

	if cfg.Health.Enabled {
		r.healthServer = health.NewServer(cfg.Health.Port, "mavrelay", logger)
		r.healthServer.Register("ingress", r.listener)
		r.healthServer.Register("router", rt)
		for _, entry := range r.sinks {
			if entry.optional {
				r.healthServer.RegisterOptional(entry.name, entry.life)
			} else {
				r.healthServer.Register(entry.name, entry.life)
			}
		}
	}

	return r, nil
}

// Initialize prepares every component. An optional sink that fails to
// initialize is logged and skipped by Start.
func (r *Relay) Initialize() error {
	for _, entry := range r.sinks {
		if err := entry.life.Initialize(); err != nil {
			if entry.optional {
				r.logger.Warn("Optional sink failed to initialize, continuing without it",
					"sink", entry.name, "error", err)
				continue
			}
			return fmt.Errorf("initialize %s: %w", entry.name, err)
		}
	}
	if err := r.router.Initialize(); err != nil {
		return fmt.Errorf("initialize router: %w", err)
	}
	if err := r.listener.Initialize(); err != nil {
		return fmt.Errorf("initialize ingress: %w", err)
	}
	return nil
}

// Start brings the pipeline up: sinks first, then the router, then the
// listener, then the observability servers.
func (r *Relay) Start(ctx context.Context) error {
	if r.running.Load() {
		return nil
	}

	started := make([]sinkEntry, 0, len(r.sinks))
	for _, entry := range r.sinks {
		if err := entry.life.Start(ctx); err != nil {
			if entry.optional {
				r.logger.Warn("Optional sink failed to start, continuing without it",
					"sink", entry.name, "error", err)
				continue
			}
			r.stopSinks(started, time.Second)
			return fmt.Errorf("start %s: %w", entry.name, err)
		}
		started = append(started, entry)
	}

	if err := r.router.Start(ctx); err != nil {
		r.stopSinks(started, time.Second)
		return fmt.Errorf("start router: %w", err)
	}

	if err := r.listener.Start(ctx); err != nil {
		_ = r.router.Stop(time.Second)
		r.stopSinks(started, time.Second)
		return fmt.Errorf("start ingress: %w", err)
	}

	if r.metricsServer != nil {
		if err := r.metricsServer.Start(); err != nil {
			r.logger.Warn("Metrics server failed to start", "error", err)
		}
	}
	if r.healthServer != nil {
		if err := r.healthServer.Start(); err != nil {
			r.logger.Warn("Health server failed to start", "error", err)
		}
	}

	r.running.Store(true)
	r.startTime = time.Now()

	r.logger.Info("Relay started",
		"upstream", r.config.Upstream.Addr(),
		"sinks", len(r.sinks),
		"queue_capacity", r.config.Queue.Capacity)

	return nil
}

// Wait blocks until the context is cancelled or the listener reports a
// fatal error. It returns nil on cancellation and the fatal error when
// the upstream died.
func (r *Relay) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-r.fatal:
		return err
	}
}

// Stop tears the pipeline down in reverse order: intake first so nothing
// new arrives, then the router drains, then the sinks flush and close.
func (r *Relay) Stop(timeout time.Duration) error {
	if !r.running.Load() {
		return nil
	}
	r.running.Store(false)

	var firstErr error

	if err := r.listener.Stop(timeout); err != nil {
		r.logger.Error("Ingress stop failed", "error", err)
		firstErr = err
	}

	if err := r.router.Stop(timeout); err != nil {
		r.logger.Error("Router stop failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	r.stopSinks(r.sinks, timeout)

	if r.healthServer != nil {
		if err := r.healthServer.Stop(timeout); err != nil {
			r.logger.Warn("Health server stop failed", "error", err)
		}
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Stop(timeout); err != nil {
			r.logger.Warn("Metrics server stop failed", "error", err)
		}
	}

	r.logger.Info("Relay stopped", "uptime", time.Since(r.startTime))

	return firstErr
}

func (r *Relay) stopSinks(entries []sinkEntry, timeout time.Duration) {
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if err := entry.life.Stop(timeout); err != nil {
			r.logger.Error("Sink stop failed", "sink", entry.name, "error", err)
		}
	}
}

// Router exposes the router for stats reporting.
func (r *Relay) Router() *router.Router {
	return r.router
}

// Listener exposes the ingress listener, mainly for its bound port.
func (r *Relay) Listener() *udp.Listener {
	return r.listener
}
