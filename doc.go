// Package semlink is a resilient messaging and key-value access layer.
//
// It gives services two long-lived dependencies that survive network trouble:
//
//   - a broker session (package broker) that connects to MQTT or NATS, keeps a
//     registry of topic-pattern handlers, dispatches inbound messages to every
//     matching handler and reconnects with capped exponential backoff, replaying
//     subscriptions before it reports itself connected again;
//   - a key-value store (package kvstore) that borrows connections from a bounded,
//     health-checked pool and offers JSON set/get/update/remove/has plus a
//     cursor-based scan that collects or streams every matching key. Redis and NATS
//     JetStream KeyValue backends are provided.
//
// # Layout
//
//	pkg/backoff        capped exponential backoff and a ctx-aware Retry helper
//	topic              '/'-separated patterns with '+' and '#' wildcards, handler registry
//	broker             transport-agnostic connection state machine
//	broker/mqtt        eclipse/paho.mqtt.golang transport
//	broker/nats        nats.go transport, topic to subject mapping
//	pool               generic resource pool on jackc/puddle
//	kvstore            pooled JSON store and cursor scanner
//	kvstore/redisconn  go-redis backed connections
//	kvstore/jskv       JetStream KeyValue backed connections
//	errors             transient / invalid / fatal error classification
//	metric, health     Prometheus registry, core metrics, health monitor and HTTP server
//	config             layered JSON/YAML configuration with environment overrides
//	pkg/tlsutil        client TLS configuration
//	pkg/worker         bounded worker pool
//	testutil           in-memory broker and key-value server, test containers
//	cmd/semlink        binary recording the last message per topic into the store
//
// # Connection lifecycle
//
//	disconnected --Connect--> connecting --ok--> connected
//	     ^                        |                  |
//	     |                   fail/timeout       transport lost
//	     |                        v                  v
//	     +------Disconnect--- waiting backoff <------+
//
// Observers are told about every transition. Handlers registered while
// disconnected are subscribed on the next successful connect.
//
// # Quick start
//
//	dialer, _ := mqtt.NewDialer(mqtt.Config{URL: "tcp://localhost:1883"})
//	mgr, _ := broker.New(broker.DefaultConfig(), dialer, broker.WithLogger(logger))
//	_ = mgr.RegisterHandler(ctx, "plant/+/temp", func(ctx context.Context, topic string, payload []byte) {
//	    ...
//	})
//	_ = mgr.Connect()
//
//	d, _ := redisconn.NewDialer(redisconn.Config{Addr: "localhost:6379"})
//	store, _ := kvstore.New(d.Factory(), kvstore.DefaultConfig())
//	_ = store.Set(ctx, "device:1", device)
package semlink
