// Package mavrelay is a real-time relay for MAVLink binary telemetry
// between an autonomous vehicle and its consumers.
//
// # Architecture
//
// One UDP listener feeds a fan-out router; each consumer is an independent
// sink behind its own bounded queue:
//
//	                ┌──────────┐
//	  vehicle ────► │  ingress │  UDP datagrams → MAVLink frames
//	   (UDP)        └────┬─────┘
//	                     ↓
//	                ┌──────────┐
//	                │  router  │  per-sink bounded queues, drop-oldest
//	                └────┬─────┘
//	     ┌───────────────┼────────────────┬──────────────┐
//	     ↓               ↓                ↓              ↓
//	┌─────────┐    ┌──────────┐    ┌──────────┐    ┌──────────┐
//	│ forward │    │ archive  │    │ jsonlog  │    │   live   │
//	│ (UDP)   │    │ (.tlog)  │    │ (.jsonl) │    │  (NATS)  │
//	└─────────┘    └──────────┘    └──────────┘    └──────────┘
//	 GCS fan-out    binary record   decoded view    dashboards
//
// Sinks are isolated: a stalled or failed sink drops its own frames and
// never blocks the others. The file sinks are fail-stop; the network sinks
// count errors and carry on.
//
// # Packages
//
// Pipeline:
//   - input/udp: UDP ingress, datagram-to-frame splitting
//   - router: fan-out over per-sink bounded queues
//   - output/udpsend: raw forwarding to ground control stations
//   - output/archive: QGroundControl-convention tlog archive
//   - output/jsonlog: JSON Lines structured log
//   - output/natslive: optional live feed over NATS
//   - relay: pipeline supervisor and lifecycle ordering
//
// Protocol:
//   - mavlink: v1/v2 framing, X.25 checksums, message catalogue, records
//
// Infrastructure:
//   - component: lifecycle and discovery interfaces
//   - config: file, env and default configuration
//   - errors: classified errors with component context
//   - health: aggregated health over HTTP
//   - metric: Prometheus registry and scrape server
//   - natsclient: managed NATS connection
//   - pkg/buffer, pkg/retry, pkg/timestamp: shared utilities
//
// # Binary
//
//	# Run with defaults: listen on 0.0.0.0:14550, archive + JSON log to ./logs
//	./bin/mavrelay
//
//	# Run with a config file and forwarding enabled
//	./bin/mavrelay --config /etc/mavrelay/relay.yaml
package mavrelay
