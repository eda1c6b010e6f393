package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/semlink/broker"
	"github.com/c360/semlink/topic"
)

// Message is a message recorded by MemoryBroker
type Message struct {
	Topic   string
	Payload []byte
}

// MemoryBroker is an in-memory broker.Dialer. Every Dial opens a MemoryConn;
// publishes are routed to all open connections with a matching subscription.
// Thread-safe for concurrent use.
type MemoryBroker struct {
	mu           sync.Mutex
	conns        map[*MemoryConn]struct{}
	dialErrs     []error
	blocked      chan struct{}
	dials        int
	subscribeErr error
	publishErr   error
	published    []Message
}

// NewMemoryBroker creates an empty broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		conns: make(map[*MemoryConn]struct{}),
	}
}

var _ broker.Dialer = (*MemoryBroker)(nil)

// Dial implements broker.Dialer
func (b *MemoryBroker) Dial(ctx context.Context, sink broker.Sink) (broker.Conn, error) {
	b.mu.Lock()
	b.dials++
	blocked := b.blocked
	var dialErr error
	if len(b.dialErrs) > 0 {
		dialErr = b.dialErrs[0]
		b.dialErrs = b.dialErrs[1:]
	}
	b.mu.Unlock()

	if blocked != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-blocked:
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &MemoryConn{
		broker: b,
		sink:   sink,
		subs:   make(map[string]struct{}),
		inbox:  make(chan Message, 256),
		done:   make(chan struct{}),
	}
	go c.run()

	b.mu.Lock()
	b.conns[c] = struct{}{}
	b.mu.Unlock()
	return c, nil
}

// FailDials makes the next len(errs) dials fail with the given errors, in order
func (b *MemoryBroker) FailDials(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErrs = append(b.dialErrs, errs...)
}

// BlockDials makes dials hang until their context is cancelled or UnblockDials is called
func (b *MemoryBroker) BlockDials() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blocked == nil {
		b.blocked = make(chan struct{})
	}
}

// UnblockDials releases blocked dials
func (b *MemoryBroker) UnblockDials() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.blocked != nil {
		close(b.blocked)
		b.blocked = nil
	}
}

// SetSubscribeError makes Subscribe and Unsubscribe fail with err (nil to clear)
func (b *MemoryBroker) SetSubscribeError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribeErr = err
}

// SetPublishError makes Publish fail with err (nil to clear)
func (b *MemoryBroker) SetPublishError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

// Dials returns the number of Dial calls so far
func (b *MemoryBroker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Conns returns the open connections
func (b *MemoryBroker) Conns() []*MemoryConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	conns := make([]*MemoryConn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	return conns
}

// Published returns every successfully published message
func (b *MemoryBroker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.published))
	copy(out, b.published)
	return out
}

// Drop closes every open connection from the server side and reports err to each sink
func (b *MemoryBroker) Drop(err error) {
	for _, c := range b.Conns() {
		c.shutdown()
		c.sink.Closed(err)
	}
}

// Inject delivers a message to every open connection subscribed to a matching pattern
func (b *MemoryBroker) Inject(topicName string, payload []byte) {
	for _, c := range b.Conns() {
		if c.subscribed(topicName) {
			c.enqueue(Message{Topic: topicName, Payload: payload})
		}
	}
}

// MemoryConn is one session opened by MemoryBroker
type MemoryConn struct {
	broker *MemoryBroker
	sink   broker.Sink

	mu     sync.Mutex
	subs   map[string]struct{}
	closed bool

	inbox chan Message
	done  chan struct{}
}

var _ broker.Conn = (*MemoryConn)(nil)

func (c *MemoryConn) run() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.inbox:
			c.sink.Deliver(msg.Topic, msg.Payload)
		}
	}
}

func (c *MemoryConn) enqueue(msg Message) {
	select {
	case c.inbox <- msg:
	case <-c.done:
	}
}

func (c *MemoryConn) subscribed(topicName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	for pattern := range c.subs {
		if topic.Matches(pattern, topicName) {
			return true
		}
	}
	return false
}

// Subscriptions returns the patterns this connection is subscribed to
func (c *MemoryConn) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for pattern := range c.subs {
		out = append(out, pattern)
	}
	return out
}

// Subscribe implements broker.Conn
func (c *MemoryConn) Subscribe(_ context.Context, pattern string) error {
	c.broker.mu.Lock()
	err := c.broker.subscribeErr
	c.broker.mu.Unlock()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	c.subs[pattern] = struct{}{}
	return nil
}

// Unsubscribe implements broker.Conn
func (c *MemoryConn) Unsubscribe(_ context.Context, pattern string) error {
	c.broker.mu.Lock()
	err := c.broker.subscribeErr
	c.broker.mu.Unlock()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, pattern)
	return nil
}

// Publish implements broker.Conn. Delivery to subscribers is asynchronous.
func (c *MemoryConn) Publish(_ context.Context, topicName string, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("connection closed")
	}

	c.broker.mu.Lock()
	if err := c.broker.publishErr; err != nil {
		c.broker.mu.Unlock()
		return err
	}
	c.broker.published = append(c.broker.published, Message{Topic: topicName, Payload: payload})
	c.broker.mu.Unlock()

	c.broker.Inject(topicName, payload)
	return nil
}

// Close implements broker.Conn. It does not call Sink.Closed, matching a client-initiated close.
func (c *MemoryConn) Close() error {
	c.shutdown()
	return nil
}

// IsClosed reports whether the connection has been closed
func (c *MemoryConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MemoryConn) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	c.broker.mu.Lock()
	delete(c.broker.conns, c)
	c.broker.mu.Unlock()
}
