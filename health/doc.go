// Package health tracks the health of the broker manager, resource pools and other
// components, and aggregates them into one process-wide status.
//
// # Health States
//
//   - healthy: operating normally
//   - degraded: operating with reduced functionality (for example, broker reconnecting)
//   - unhealthy: not functioning
//
// # Push and Pull
//
// Components either push updates:
//
//	monitor.UpdateDegraded("broker", "reconnecting")
//
// or implement Reporter and get polled:
//
//	monitor.Register("broker", manager)     // *broker.Manager implements Health() Status
//	go monitor.Run(ctx, 10*time.Second)
//
// # Aggregation
//
// AggregateHealth reports unhealthy if any component is unhealthy, degraded if any is
// degraded, and healthy otherwise. The metric package serves it at /health.
//
// # Sanitization
//
// FromReport sanitizes LastError before exposing it: URLs of any scheme (mqtt://, nats://,
// redis://), file paths, IP addresses, ports and credential assignments are replaced with
// placeholders.
package health
