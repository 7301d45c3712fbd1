// Package prometheus exposes engine counters through a client_golang [prom.Collector].
//
// [NewCollector] reads [cyclecore.Engine.MetricsSnapshot] on every scrape and publishes each
// counter as a cyclecore_*_total series and each latency histogram as a native Prometheus
// histogram. Callers register the collector in their own registry; nothing is registered
// globally.
package prometheus
