// Package metric owns the Prometheus registry of a monitoring host and the
// HTTP server that exposes it.
//
// Core metrics (source state, emitted records, received notifications,
// reconciliations, poll duration, live handler nodes) are registered on
// creation. Sources register their own collectors through MetricsRegistrar,
// keyed by source name, so two sources on one host never collide:
//
//	registry := metric.NewMetricsRegistry()
//	err := registry.RegisterGauge("jobs-source", "isConnected", gauge)
//
// Components treat a nil *MetricsRegistry as "metrics disabled".
//
// Server serves /metrics (OpenMetrics) and /health; the health endpoint
// answers 503 while the supplied HealthFunc reports unhealthy.
package metric
