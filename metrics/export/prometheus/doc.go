// Package prometheus exports goSession metrics to Prometheus.
//
// [PrometheusExporter] implements prometheus.Collector over
// [goSession.Manager.MetricsSnapshot], so it can be registered in any
// registry. [PrometheusExporter.Handler] serves it from a private registry and
// [PrometheusExporter.Render] produces the text format directly. Counter names
// are prefixed gosession_*_total; the single histogram is
// gosession_authority_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate manager state.
package prometheus
