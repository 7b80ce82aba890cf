// Package observability provides structured logging, context propagation and
// Prometheus metrics for the paper pipeline service.
//
// Loggers are zerolog-based and configured once at startup; components derive
// sub-loggers via the With* helpers so every log line carries task, run and
// item identifiers. Metrics are registered via promauto against the default
// registry and exposed on the API server's /metrics endpoint.
package observability
