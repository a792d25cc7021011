// Package metric provides Prometheus metrics for the media engine and an HTTP
// server exposing them.
//
// A MetricsRegistry carries the engine metrics (pipeline state, element counts,
// link, negotiation and assembly outcomes, bus traffic) and accepts additional
// collectors keyed by owner, which is how worker pools and message buses register
// their queue metrics:
//
//	registry := metric.NewMetricsRegistry(metric.WithRuntimeMetrics())
//	server := metric.NewServer(":9090", "/metrics", registry)
//	go server.Run(ctx)
//
//	registry.CoreMetrics().RecordPipelineState("live", 1)
//
// Owner-scoped metrics are removed together with UnregisterOwner when the owning
// pipeline is closed.
package metric
