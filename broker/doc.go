// Package broker keeps one publish/subscribe connection usable for many callers.
//
// A Manager drives an injected transport (see Dialer, Conn and Sink) through a small
// state machine:
//
//	Disconnected ──Connect──▶ Connecting ──dial ok──▶ Connected
//	     ▲                        │                       │
//	     └──── dial error, connect timeout, session close ┘
//	     │
//	     └── reconnect timer (exponential backoff) ──▶ Connecting
//
//	any ──Disconnect──▶ Closing ──transport gone──▶ Disconnected (explicit, no retry)
//
// Transports live in sub-packages: broker/mqtt (Eclipse Paho) and broker/nats.
//
// # Usage
//
//	dialer := mqtt.NewDialer(mqtt.Config{URL: "tcp://localhost:1883"})
//	m, err := broker.New(broker.DefaultConfig(), dialer,
//	    broker.WithLogger(logger),
//	    broker.WithObserver(myObserver),
//	)
//	if err != nil {
//	    return err
//	}
//
//	_ = m.RegisterHandler(ctx, "sensors/+/temp", func(ctx context.Context, topic string, payload []byte) {
//	    // handle
//	})
//	_ = m.Connect()
//	defer m.Disconnect(context.Background())
//
// # Failure Semantics
//
// Transport failures never surface as return values. Connect failures, connect timeouts
// and session closes move the manager back to Disconnected, notify the Observer (error,
// then closed) and only then schedule the next attempt. Subscribe, unsubscribe and publish
// rejections are logged and reported through OnError while the call itself returns nil.
//
// Precondition violations fail fast: Publish with no live session returns ErrNotConnected,
// malformed patterns and topics return ErrInvalidPattern and ErrInvalidTopic.
//
// # Dispatch
//
// Every registered pattern matching an inbound topic has its handler invoked exactly once.
// Dispatch is serialized per manager. Handler panics are recovered. Messages matching
// nothing are counted, logged at a limited rate, and passed to the Observer when it
// implements UnmatchedObserver.
package broker
