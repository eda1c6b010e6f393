package nats

import (
	"context"
	"crypto/tls"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	gonats "github.com/nats-io/nats.go"

	"github.com/c360/semlink/broker"
	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/pkg/tlsutil"
	"github.com/c360/semlink/topic"
)

// Config configures NATS sessions
type Config struct {
	URL          string               `json:"url" yaml:"url"`
	Name         string               `json:"name,omitempty" yaml:"name,omitempty"`
	Username     string               `json:"username,omitempty" yaml:"username,omitempty"`
	Password     string               `json:"password,omitempty" yaml:"password,omitempty"`
	Token        string               `json:"token,omitempty" yaml:"token,omitempty"`
	PingInterval time.Duration        `json:"ping_interval,omitempty" yaml:"ping_interval,omitempty"`
	DrainTimeout time.Duration        `json:"drain_timeout,omitempty" yaml:"drain_timeout,omitempty"`
	Compression  bool                 `json:"compression,omitempty" yaml:"compression,omitempty"`
	TLS          tlsutil.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "nats", "Validate", "check url")
	}
	return c.TLS.Validate()
}

// Option configures a Dialer
type Option func(*Dialer)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dialer opens NATS sessions. It implements broker.Dialer.
type Dialer struct {
	cfg       Config
	tlsConfig *tls.Config
	logger    *slog.Logger
}

var _ broker.Dialer = (*Dialer)(nil)

// NewDialer validates cfg and loads TLS material
func NewDialer(cfg Config, opts ...Option) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tlsConfig, err := tlsutil.LoadClientConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	d := &Dialer{
		cfg:       cfg,
		tlsConfig: tlsConfig,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "nats", "url", cfg.URL)
	return d, nil
}

// connectionOptions builds the nats.go options for one session. Deadline bounds the
// connect handshake when non-zero.
func (d *Dialer) connectionOptions(c *conn, deadline time.Time) []gonats.Option {
	opts := []gonats.Option{
		gonats.NoReconnect(),
		gonats.ClosedHandler(c.handleClosed),
		gonats.ErrorHandler(c.handleError),
	}
	if !deadline.IsZero() {
		if timeout := time.Until(deadline); timeout > 0 {
			opts = append(opts, gonats.Timeout(timeout))
		}
	}
	if d.cfg.PingInterval > 0 {
		opts = append(opts, gonats.PingInterval(d.cfg.PingInterval))
	}
	if d.cfg.DrainTimeout > 0 {
		opts = append(opts, gonats.DrainTimeout(d.cfg.DrainTimeout))
	}

	// Add authentication if configured
	if d.cfg.Username != "" && d.cfg.Password != "" {
		opts = append(opts, gonats.UserInfo(d.cfg.Username, d.cfg.Password))
	}
	if d.cfg.Token != "" {
		opts = append(opts, gonats.Token(d.cfg.Token))
	}
	if d.tlsConfig != nil {
		opts = append(opts, gonats.Secure(d.tlsConfig))
	}
	if d.cfg.Name != "" {
		opts = append(opts, gonats.Name(d.cfg.Name))
	}
	if d.cfg.Compression {
		opts = append(opts, gonats.Compression(true))
	}
	return opts
}

// Dial implements broker.Dialer
func (d *Dialer) Dial(ctx context.Context, sink broker.Sink) (broker.Conn, error) {
	c := &conn{
		sink:   sink,
		logger: d.logger,
		subs:   make(map[string][]*gonats.Subscription),
	}
	deadline, _ := ctx.Deadline()
	opts := d.connectionOptions(c, deadline)

	type result struct {
		nc  *gonats.Conn
		err error
	}
	connectDone := make(chan result, 1)
	go func() {
		nc, err := gonats.Connect(d.cfg.URL, opts...)
		connectDone <- result{nc, err}
	}()

	select {
	case res := <-connectDone:
		if res.err != nil {
			return nil, errors.WrapTransient(res.err, "nats", "Dial", "establish connection")
		}
		c.nc = res.nc
		return c, nil
	case <-ctx.Done():
		// A connect that completes late is closed without reporting to the sink
		c.closing.Store(true)
		go func() {
			if res := <-connectDone; res.nc != nil {
				res.nc.Close()
			}
		}()
		return nil, errors.WrapTransient(ctx.Err(), "nats", "Dial", "connection cancelled")
	}
}

// conn is one NATS session
type conn struct {
	nc      *gonats.Conn
	sink    broker.Sink
	logger  *slog.Logger
	closing atomic.Bool

	mu       sync.RWMutex
	subs     map[string][]*gonats.Subscription
	patterns []string // sorted keys of subs
}

func (c *conn) handleClosed(nc *gonats.Conn) {
	if c.closing.Load() {
		return
	}
	err := nc.LastError()
	if err == nil {
		err = gonats.ErrConnectionClosed
	}
	c.sink.Closed(err)
}

func (c *conn) handleError(_ *gonats.Conn, sub *gonats.Subscription, err error) {
	if sub != nil {
		c.logger.Error("NATS subscription error", "subject", sub.Subject, "error", err)
		return
	}
	c.logger.Error("NATS error", "error", err)
}

// owns reports whether pattern is the lowest subscribed pattern matching topicName
func (c *conn) owns(pattern, topicName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.patterns {
		if topic.Matches(p, topicName) {
			return p == pattern
		}
	}
	return false
}

func (c *conn) Subscribe(ctx context.Context, pattern string) error {
	subjects, err := SubjectsForPattern(pattern)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if _, ok := c.subs[pattern]; ok {
		c.mu.Unlock()
		return nil
	}

	handler := func(msg *gonats.Msg) {
		topicName := TopicForSubject(msg.Subject)
		if c.owns(pattern, topicName) {
			c.sink.Deliver(topicName, msg.Data)
		}
	}

	subs := make([]*gonats.Subscription, 0, len(subjects))
	for _, subject := range subjects {
		sub, err := c.nc.Subscribe(subject, handler)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			c.mu.Unlock()
			return errors.WrapTransient(err, "nats", "Subscribe", "subscribe "+subject)
		}
		subs = append(subs, sub)
	}
	c.subs[pattern] = subs
	c.patterns = append(c.patterns, pattern)
	sort.Strings(c.patterns)
	c.mu.Unlock()

	// Round trip so the server has the interest registered before we return
	if err := c.nc.FlushWithContext(ctx); err != nil {
		return errors.WrapTransient(err, "nats", "Subscribe", "flush subscription")
	}
	return nil
}

func (c *conn) Unsubscribe(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs, ok := c.subs[pattern]
	if !ok {
		return nil
	}
	delete(c.subs, pattern)
	for i, p := range c.patterns {
		if p == pattern {
			c.patterns = append(c.patterns[:i], c.patterns[i+1:]...)
			break
		}
	}

	var firstErr error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = errors.WrapTransient(err, "nats", "Unsubscribe", "unsubscribe "+sub.Subject)
		}
	}
	return firstErr
}

func (c *conn) Publish(ctx context.Context, topicName string, payload []byte) error {
	subject, err := SubjectForTopic(topicName)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.nc.Publish(subject, payload); err != nil {
		return errors.WrapTransient(err, "nats", "Publish", "publish "+subject)
	}
	return nil
}

func (c *conn) Close() error {
	c.closing.Store(true)
	c.nc.Close()
	return nil
}
