// Package prometheus exposes engine counters through a client_golang
// collector.
//
// [NewPrometheusExporter] registers a [Collector] in a private registry and
// serves it with promhttp. Counter names are stepup_*_total; the single
// histogram is stepup_verify_latency_seconds. Callers that run their own
// registry register [NewCollector] directly.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
