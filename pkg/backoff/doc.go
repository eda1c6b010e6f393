// Package backoff provides the reconnect backoff policy and a small retry helper.
//
// # Overview
//
// A State carries the base interval, the cap and the interval that will be used for the
// next wait. State is a value: Next and Reset return a new State and never mutate the
// receiver, so the policy is a pure function of the failure history.
//
//	s := backoff.New(time.Second, 30*time.Second)
//	wait, s := s.Next() // 1s, Current becomes 2s
//	wait, s = s.Next()  // 2s, Current becomes 4s
//	s = s.Reset()       // Current back to 1s after a successful connect
//
// For k consecutive failures starting from base b with cap m, the k-th wait equals
// min(b·2^(k-1), m).
//
// # Retry
//
// Retry drives an operation with the same policy:
//
//	err := backoff.Retry(ctx, backoff.New(50*time.Millisecond, time.Second), 5, func(ctx context.Context) error {
//	    return pool.CreateResource(ctx)
//	})
//
// Errors wrapped with NonRetryable stop the loop immediately. Context cancellation is
// honoured both while the operation runs and while waiting.
package backoff
