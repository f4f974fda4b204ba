package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360/mavrelay/component"
	"github.com/c360/mavrelay/errors"
)

// watched pairs a component with how hard its failure hits the aggregate.
type watched struct {
	name     string
	comp     component.Discoverable
	optional bool
}

// Server polls registered components and serves the aggregated status.
type Server struct {
	port    int
	name    string
	server  *http.Server
	logger  *slog.Logger
	mu      sync.Mutex // protects server and watched fields
	watched []watched
}

// NewServer creates a new health server.
func NewServer(port int, name string, logger *slog.Logger) *Server {
	if port == 0 {
		port = 8081
	}
	if name == "" {
		name = "mavrelay"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		port:   port,
		name:   name,
		logger: logger.With("component", "health-server"),
	}
}

// Register adds a component whose failure makes the relay unhealthy.
func (s *Server) Register(name string, comp component.Discoverable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = append(s.watched, watched{name: name, comp: comp})
}

// RegisterOptional adds a component whose failure only degrades the relay.
// The live feed is optional: a flapping broker should not get the relay
// restarted.
func (s *Server) RegisterOptional(name string, comp component.Discoverable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watched = append(s.watched, watched{name: name, comp: comp, optional: true})
}

// Snapshot polls every registered component and aggregates the result.
func (s *Server) Snapshot() Status {
	s.mu.Lock()
	watched := make([]watched, len(s.watched))
	copy(watched, s.watched)
	s.mu.Unlock()

	subStatuses := make([]Status, 0, len(watched))
	for _, w := range watched {
		status := FromComponentHealth(w.name, w.comp.Health())
		if w.optional && status.IsUnhealthy() {
			status.Status = "degraded"
		}
		subStatuses = append(subStatuses, status)
	}

	return Aggregate(s.name, subStatuses)
}

// Start starts the health HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Server", "Start", "health server state check")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// The pipeline keeps running without health checks rather than dying.
			s.logger.Error("health server failed", "port", s.port, "error", err)
		}
	}()

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := s.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if status.IsUnhealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("health response encoding failed", "error", err)
	}
}

// Stop gracefully shuts down the health server.
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
		return errors.WrapTransient(err, "Server", "Stop", "health server shutdown")
	}
	return nil
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}
