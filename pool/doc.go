// Package pool provides a bounded, lazily constructed pool of validated resources.
//
// A Pool is built on github.com/jackc/puddle/v2. Nothing is created by New: the first
// operation builds the underlying pool exactly once (concurrent first users share that
// build through a singleflight group) and warms it up to Config.Min entries.
//
// Every operation goes through With, which acquires an entry, validates it when
// TestOnBorrow is set, runs the action and always hands the entry back:
//
//	err := p.With(ctx, func(ctx context.Context, c *redis.Conn) error {
//	    return c.Ping(ctx).Err()
//	})
//
// An entry failing validation is destroyed and another is acquired, up to Max+1 tries,
// after which With fails with errors.ErrResourceExhausted. An action that panics has its
// entry destroyed rather than released. Whenever entries are destroyed the pool tops
// itself back up to Min in the background.
//
// Shutdown drains and destroys every entry and forgets the underlying pool, so the
// next operation lazily builds a fresh one. Shutdown on a pool that was never used is
// a no-op.
package pool
