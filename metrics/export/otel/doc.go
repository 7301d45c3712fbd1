// Package otel publishes engine counters through OpenTelemetry observable instruments.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and, per latency
// histogram, one Int64ObservableGauge per cumulative bucket plus a count gauge. A single callback
// reads [cyclecore.Engine.MetricsSnapshot] on each collection. Callers own the MeterProvider.
package otel
