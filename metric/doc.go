// Package metric provides Prometheus metrics infrastructure for the relay.
//
// The Registry wraps a dedicated prometheus.Registry and tracks collectors by
// component and metric name so registrations can be checked for duplicates and
// unwound individually. The Server exposes the registry on an HTTP /metrics
// endpoint for scraping.
//
// Components create their own collectors (counters for frames and bytes,
// gauges for queue depth, histograms for latency) and register them through
// the Registry; nothing here is relay-domain specific.
package metric
