// Package bridge links relay hubs running in separate processes through a
// pub/sub broker, Redis in production.
//
// A Bridge joins its local hub as one ordinary peer. Everything the hub
// delivers to that peer is published to the shared channel, prefixed with
// the bridge's 16-byte instance id:
//
//	[16-byte instance uuid][payload]
//
// Messages arriving from the channel are injected into the local hub as if
// the bridge peer had sent them, so the distributor never hands them back to
// the bridge. A bridge drops its own messages when the broker echoes them.
//
// Usage:
//
//	client, err := redis.Connect(ctx, cfg.Redis)
//	if err != nil {
//		return err
//	}
//	b, err := bridge.NewFromConfig(cfg.Bridge, hub, bridge.NewRedisBroker(client),
//		bridge.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	g.Go(b.Run(ctx))
//
// Delivery across hubs is at most once: a failed publish is logged and the
// message is lost for remote peers.
package bridge
