// Package router fans received MAVLink frames out to the configured sinks.
//
// Each sink gets its own bounded drop-oldest queue and a single worker
// goroutine, so sinks are isolated from each other: a slow or failed sink
// drops its own frames while the others keep flowing, and per-sink delivery
// order stays first-in first-out. Dispatch never blocks; it clones the frame
// once per sink so a sink can hold bytes as long as it likes.
//
// On Stop each worker drains its queue to empty, bounded by the configured
// grace period.
package router
