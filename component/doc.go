// Package component defines the contracts shared by every stage of the relay
// pipeline: the UDP listener, the fan-out router, and the sinks.
//
// A component advertises what it is (Metadata), which external resources it
// touches (Port), and how it is doing (HealthStatus, FlowMetrics) through the
// Discoverable interface. Components that run goroutines additionally
// implement LifecycleComponent:
//
//	Initialize() error                  // allocate resources, no goroutines
//	Start(ctx context.Context) error    // spawn workers bound to ctx
//	Stop(timeout time.Duration) error   // graceful shutdown within timeout
//
// Dependencies carries the shared infrastructure (logger, metrics registry,
// optional NATS client) that constructors receive instead of reaching for
// globals.
package component
