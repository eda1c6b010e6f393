package broker

import "context"

// Dialer establishes transport sessions. Dial must return promptly once ctx is cancelled;
// the manager cancels ctx when the connect timeout fires or the attempt is abandoned.
type Dialer interface {
	Dial(ctx context.Context, sink Sink) (Conn, error)
}

// DialerFunc adapts a function to Dialer
type DialerFunc func(ctx context.Context, sink Sink) (Conn, error)

// Dial implements Dialer
func (f DialerFunc) Dial(ctx context.Context, sink Sink) (Conn, error) { return f(ctx, sink) }

// Conn is one live transport session.
//
// Subscribe and Unsubscribe take "/"-delimited patterns with "+" and "#" wildcards and
// must be idempotent per pattern. Close terminates the session synchronously and may be
// called more than once.
type Conn interface {
	Subscribe(ctx context.Context, pattern string) error
	Unsubscribe(ctx context.Context, pattern string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Sink receives transport events. The manager hands one Sink to each dial.
type Sink interface {
	// Deliver hands an inbound message to the manager
	Deliver(topic string, payload []byte)
	// Closed reports that the session ended. Calls after the first are ignored.
	Closed(err error)
}
