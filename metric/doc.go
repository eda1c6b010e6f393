// Package metric provides Prometheus-based metrics collection and an HTTP server
// exposing them alongside aggregated component health.
//
// # Architecture
//
//  1. Core Metrics: broker and pool metrics registered automatically (Metrics type)
//  2. Registry: named registration for component-specific collectors (MetricsRegistry.Register)
//  3. HTTP Server: /metrics in Prometheus format and /health backed by a health.Monitor
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	monitor := health.NewMonitor()
//	server := metric.NewServer(9090, "/metrics", registry, monitor)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        slog.Error("metrics server failed", "error", err)
//	    }
//	}()
//
// # Core Metrics
//
// Broker metrics are labelled by broker name:
//
//   - semlink_broker_state (0=disconnected, 1=connecting, 2=connected, 3=closing)
//   - semlink_broker_connect_attempts_total, semlink_broker_connect_timeouts_total
//   - semlink_broker_reconnects_scheduled_total
//   - semlink_messages_received_total, semlink_messages_dispatched_total,
//     semlink_messages_unmatched_total, semlink_messages_published_total
//   - semlink_messages_handler_panics_total, semlink_messages_dispatch_duration_seconds
//
// Pool metrics are labelled by pool name:
//
//   - semlink_pool_entries, semlink_pool_borrowed
//   - semlink_pool_acquire_duration_seconds
//   - semlink_pool_validation_failures_total, semlink_pool_create_failures_total
//   - semlink_pool_action_errors_total
//
// Every Record method is a no-op on a nil *Metrics, so components can hold an
// optional metrics handle without guarding each call.
//
// # Component Metrics
//
//	counter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "bridge_forwarded_total",
//	    Help: "Messages forwarded by the bridge",
//	})
//	if err := registry.RegisterCounter("bridge", "forwarded_total", counter); err != nil {
//	    return err
//	}
//
// Registering the same component/metric pair twice returns an invalid-class error.
package metric
