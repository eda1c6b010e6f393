// Package worker provides a generic bounded worker pool.
//
// A Pool runs a fixed number of goroutines that take items from a bounded queue and
// hand them to a processor function. Submit never blocks: when the queue is full the
// item is dropped and ErrQueueFull is returned, so callers sitting on a hot path (such
// as a broker message handler) keep their latency and see overload as an error.
//
//	pool := worker.New(worker.Config{Workers: 1, QueueSize: 1024},
//	    func(ctx context.Context, rec Record) error {
//	        return store.Set(ctx, rec.Key, rec)
//	    },
//	    worker.WithLogger(logger),
//	    worker.WithMetrics(registry, "recorder"))
//
//	if err := pool.Start(ctx); err != nil { ... }
//	_ = pool.Submit(rec)
//	...
//	err := pool.Stop(shutdownCtx) // drains the queue
//
// A pool with a single worker processes items in submission order.
//
// Statistics are always tracked with atomics and returned by Stats. Prometheus
// metrics are registered only when WithMetrics is given.
package worker
