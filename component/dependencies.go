package component

import (
	"log/slog"

	"github.com/c360/mavrelay/metric"
	"github.com/c360/mavrelay/natsclient"
)

// Dependencies provides all external dependencies needed by components.
// Constructors receive this struct rather than individual fields so that new
// shared infrastructure can be added without touching every call site.
type Dependencies struct {
	NATSClient *natsclient.Client // NATS client for the live feed (can be nil)
	Registry   *metric.Registry   // Metrics registry for Prometheus (can be nil)
	Logger     *slog.Logger       // Structured logger (can be nil, defaults to slog.Default())
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}
