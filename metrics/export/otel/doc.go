// Package otel binds goSession counters and the authority latency histogram
// to OpenTelemetry instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per manager
// operation (gosession.login, gosession.recover, gosession.gateway, ...)
// whose data points are keyed by the gosession.outcome attribute. Authority
// latency is exported as a cumulative gauge keyed by its le bound, plus a
// total count. A single callback reads [goSession.Manager.MetricsSnapshot]
// on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate manager state.
package otel
