package router

import (
	"context"

	"github.com/c360/mavrelay/mavlink"
)

// Sink consumes frames delivered by the router. Handle is called from a
// single goroutine per sink, in dispatch order. A returned error counts
// against the sink but never stops the router; sinks that cannot recover
// are expected to fail stop internally and swallow further frames.
type Sink interface {
	Name() string
	Handle(ctx context.Context, frame mavlink.RawFrame) error
}
