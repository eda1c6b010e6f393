// Package kvstore is a key-value service facade over a pool of backend connections.
//
// Values are stored as JSON text. Every operation borrows one connection from a
// pool.Pool for its duration, so callers never see reconnects or broken entries:
//
//	store, err := kvstore.New(redisconn.NewFactory(redisconn.Config{URL: "redis://localhost:6379"}),
//	    kvstore.DefaultConfig(), kvstore.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer store.Shutdown(ctx)
//
//	err = store.Set(ctx, "session:42", session, 30*time.Minute)
//	found, err := store.Get(ctx, "session:42", &session)
//
// # Failure semantics
//
// A payload that cannot be decoded is a data condition: Get reports the key as absent
// and logs the problem. Update of a missing key fails with errors.ErrKeyNotFound.
// Failures to borrow a healthy connection, including errors.ErrResourceExhausted,
// are returned to the caller.
//
// # Enumeration
//
// ScanKeysCursor and ScanAndGetJSONCursor expose one page of a MATCH/COUNT style
// enumeration. The cursor "0" both starts and ends a walk. ScanKeys and ScanAndGet
// loop the cursor forms to completion and drop keys the backend returned twice.
package kvstore
