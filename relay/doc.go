// Package relay wires the telemetry pipeline together: one UDP listener
// feeding a fan-out router whose sinks forward, archive, log and publish
// the stream.
//
// The relay owns component lifecycle. Sinks start before the router so no
// frame is dispatched into a closed sink, and the listener starts last so
// no frame arrives before the pipeline can carry it. Shutdown runs the
// same order in reverse: stop the intake, drain the queues, then flush and
// close the sinks.
//
// The live feed is the one deliberately soft dependency. A broker that is
// down at startup or dies mid-flight degrades the relay, it never stops it.
package relay
