// Package prometheus exposes shopauth engine counters as a
// prometheus.Collector.
//
// Counter names are shopauth_*_total; the one histogram is
// shopauth_authorize_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers choose the registry.
//   - Mutate engine state.
package prometheus
