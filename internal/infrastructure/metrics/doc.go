// Package metrics exposes hub telemetry in Prometheus format.
//
// Metrics are registered on a private registry rather than the global one,
// so tests can build as many as they like. The registry also carries the
// Go runtime and process collectors.
package metrics
