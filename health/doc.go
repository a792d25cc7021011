// Package health reports the health of a running pipeline.
//
// A Monitor follows a pipeline's RUN_STATE and NEGOTIATE_FAILED notifications
// and combines them with the live state of every element and pin into a
// three-level Status tree:
//   - healthy: the pipeline and the element are running with negotiated pins
//   - degraded: not started yet, paused, or a connected pin still waits for a
//     capability
//   - unhealthy: stopped, or a negotiation failure left a pin without a
//     capability
//
// Aggregation takes the worst level of the sub-statuses. Failure reasons are
// sanitized before they are exposed so that peer addresses and credentials in
// error text do not leak through the HTTP endpoint.
//
// Basic usage:
//
//	monitor, err := health.NewMonitor(p, logger)
//	if err != nil {
//		return err
//	}
//	defer monitor.Close()
//
//	server := metric.NewServer(":9090", "/metrics", registry)
//	server.SetHealthHandler(monitor)
//
// Monitor implements http.Handler. It answers 200 while the pipeline is healthy
// or degraded and 503 once it is unhealthy, with the Status tree as JSON.
package health
