// Package gateway exposes the relay hub over HTTP.
//
// Routes:
//
//	GET /ws     WebSocket peer; each binary message is one relay message
//	GET /live   liveness probe, always "ALIVE"
//	GET /ready  readiness probe: hub and distributor running plus any
//	            checks added with WithReadinessCheck (Redis ping when bridged)
//	GET /stats  JSON snapshot of hub and distributor counters
//
// WebSocket peers receive ids from the same sequence as TCP peers and are
// relayed to and from them without distinction.
//
// Usage:
//
//	gw, err := gateway.NewFromConfig(cfg, hub,
//		gateway.WithLogger(log),
//		gateway.WithReadinessCheck(redis.Healthcheck(client)),
//	)
//	if err != nil {
//		return err
//	}
//	g.Go(gw.Run(ctx))
package gateway
