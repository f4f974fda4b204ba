package metric

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/mavrelay/errors"
)

// Server exposes the registry over HTTP for Prometheus scraping.
type Server struct {
	port     int
	path     string
	server   *http.Server
	registry *Registry
	logger   *slog.Logger
	mu       sync.Mutex // protects server field
}

// NewServer creates a new metrics server with the provided registry.
func NewServer(port int, path string, registry *Registry, logger *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	if port == 0 {
		port = 9090
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		port:     port,
		path:     path,
		registry: registry,
		logger:   logger.With("component", "metrics-server"),
	}
}

// Start starts the metrics HTTP server. It returns once the listener
// goroutine is running; bind errors surface on the first scrape attempt
// and in the process log.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Server", "Start", "metrics server state check")
	}

	if s.registry == nil {
		return errors.WrapFatal(
			fmt.Errorf("nil registry"),
			"Server", "Start", "metrics registry check")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{},
	))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// The pipeline keeps running without metrics rather than dying.
			s.logger.Error("metrics server failed", "port", s.port, "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "metrics server shutdown")
	}
	return nil
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Path returns the configured scrape path.
func (s *Server) Path() string {
	return s.path
}
