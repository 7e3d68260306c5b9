// Package ratelimiter implements per-key token buckets held in memory.
//
// Each key gets a bucket of Capacity tokens. Allow takes one token and
// reports false when the bucket is empty. RefillRate tokens come back every
// RefillInterval, never above Capacity.
//
// The relay listener uses it to cap how fast one remote host may open
// connections:
//
//	lim, err := ratelimiter.New(ratelimiter.Config{
//		Capacity:       20,
//		RefillRate:     5,
//		RefillInterval: time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	g.Go(lim.Run(ctx)) // drops buckets of hosts that went quiet
//
//	srv := server.New(addr, server.WithAdmission(lim))
//
// Buckets untouched for longer than the stale period (WithStaleAfter,
// 10 minutes by default) are removed by the cleanup loop.
package ratelimiter
