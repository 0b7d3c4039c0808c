// Package prometheus exposes portalauth engine metrics as a
// prometheus.Collector.
//
// Counter names are portalauth_*_total; the single histogram is
// portalauth_gatekeeper_latency_seconds. [Exporter.Handler] serves them from a
// private registry, so nothing is registered globally.
package prometheus
