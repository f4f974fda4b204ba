// Package natslive publishes decoded telemetry records to a NATS subject so
// dashboards and other live consumers can subscribe without touching the
// relay's files.
//
// The live feed is best-effort. While the broker is unreachable, frames are
// counted as dropped and the relay carries on; the file sinks remain the
// durable record. Connection establishment retries in the background so a
// broker that comes up late still gets the feed.
package natslive
