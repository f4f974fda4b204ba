// Package natsclient manages the NATS connection used by the live-feed
// output. It wraps nats.Conn with a small circuit breaker so a dead broker
// cannot stall the relay pipeline: after repeated connection failures the
// circuit opens and publish attempts fail fast until a backoff expires.
//
// The client is optional infrastructure. When the live feed is disabled the
// rest of the relay never constructs one.
package natsclient
