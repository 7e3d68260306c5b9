// Package relay is the broadcast core of relayhub: every message one peer sends
// is delivered to all other peers and never back to its sender.
//
// Three pieces cooperate:
//
//   - Distributor owns the peer list. It consumes a single stream of Joined and
//     Received events on one goroutine, so joins and broadcasts happen in one
//     total order and no lock guards the list.
//   - Session (one per connection) submits Joined before reading anything, then
//     forwards each inbound message as Received and writes whatever lands in its
//     Mailbox back to the connection.
//   - Hub hands out peer ids (0, 1, 2, ... never reused) and runs sessions for
//     every transport: framed TCP streams, WebSocket connections and the Redis
//     bridge. A listener calls Register on its accept loop, so TCP ids follow
//     accept order.
//
// Basic wiring:
//
//	dist := relay.NewDistributor(relay.WithDistributorLogger(log))
//	hub := relay.NewHub(dist,
//		relay.WithMailboxCapacity(1024),
//		relay.WithOverflowPolicy(relay.DropOldest),
//	)
//
//	eg, ctx := errgroup.WithContext(ctx)
//	eg.Go(dist.Run(ctx))
//	eg.Go(listener.Run(ctx, hub))
//
// # Delivery
//
// Delivery is best effort. Each peer has a Mailbox with a capacity and an
// OverflowPolicy (DropNewest, DropOldest, Disconnect); the distributor never
// blocks on a slow peer. A mailbox that is closed because its session ended
// makes the distributor drop that peer from the list on the next broadcast.
//
// # Errors
//
// Connection errors end only their own session. They are logged by the hub and
// never reach the distributor or other peers.
package relay
