// Package otel mirrors portalauth engine metrics into OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and,
// for the gatekeeper latency histogram, a bucket gauge keyed by an "le"
// attribute plus a count gauge. A single callback reads the engine snapshot
// on each collection. The caller owns the MeterProvider.
package otel
