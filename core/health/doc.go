// Package health provides net/http probe handlers.
//
// Handlers:
//   - Liveness: process is running (no dependency checks)
//   - Readiness: every dependency check passes
//   - NoContent: 204 for minimal overhead
//
// Usage:
//
//	r.HandleFunc("/live", health.Liveness)
//	r.Handle("/ready", health.Readiness(log, hub.Healthcheck, redis.Healthcheck(client)))
//
// Checks follow the func(context.Context) error signature.
package health
