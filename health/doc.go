// Package health aggregates component health into a single status served
// over HTTP.
//
// Each pipeline component reports its own component.HealthStatus. The
// monitor keeps the latest status per component and rolls them up: any
// unhealthy component makes the relay unhealthy, a degraded one makes it
// degraded, otherwise the relay is healthy. The HTTP endpoint answers 200
// for healthy and degraded, 503 for unhealthy, so a supervisor can restart
// a relay whose ingress or archive has died while tolerating a flapping
// live feed.
//
// Error messages are sanitized before they leave the process. Health
// endpoints tend to end up on dashboards and in tickets; addresses, paths
// and credentials do not belong there.
package health
