// Package otel binds engine counters to OpenTelemetry observable instruments.
//
// [NewOTelExporter] creates an Int64ObservableCounter per engine counter and,
// for the verify-latency histogram, one gauge of cumulative bucket counts
// keyed by an "le" attribute. A single callback reads
// [goStepUp.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
