// Package redisconn provides Redis connections for kvstore pools using go-redis.
//
// Each pool entry is its own single-connection go-redis client, so the kvstore pool
// rather than go-redis decides how many sockets exist. Lifecycle events are observed
// through a go-redis Hook and reported to a kvstore.Observer:
//
//	dialer, err := redisconn.NewDialer(redisconn.Config{URL: "redis://localhost:6379/0"},
//	    redisconn.WithObserver(obs))
//	store, err := kvstore.New(dialer.Factory(), kvstore.DefaultConfig())
package redisconn
