package jskv

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	gonats "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/tidwall/match"
	"golang.org/x/sync/errgroup"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/kvstore"
	"github.com/c360/semlink/metric"
	"github.com/c360/semlink/pkg/backoff"
	"github.com/c360/semlink/pkg/tlsutil"
)

// getManyConcurrency bounds in-flight gets per batch
const getManyConcurrency = 16

// Option configures a Dialer
type Option func(*Dialer)

// WithObserver reports connection lifecycle events to o
func WithObserver(o kvstore.Observer) Option {
	return func(d *Dialer) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics counts connection and operation errors in the registry's core metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(d *Dialer) {
		d.metrics = registry.CoreMetrics()
	}
}

// Dialer opens bucket-bound NATS connections for a kvstore pool
type Dialer struct {
	cfg       Config
	tlsConfig *tls.Config
	observer  kvstore.Observer
	logger    *slog.Logger
	metrics   *metric.Metrics
}

// NewDialer validates cfg and loads TLS material
func NewDialer(cfg Config, opts ...Option) (*Dialer, error) {
	cfg = cfg.withDefaults()
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
		observer:  kvstore.NopObserver{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "jskv", "url", cfg.URL, "bucket", cfg.Bucket)
	d.observer = kvstore.Recovering(d.observer, d.logger)
	return d, nil
}

// Factory returns the pool factory for this dialer
func (d *Dialer) Factory() kvstore.DialFunc {
	return d.Dial
}

func (d *Dialer) connectionOptions(c *conn, timeout time.Duration) []gonats.Option {
	opts := []gonats.Option{
		gonats.Timeout(timeout),
		gonats.MaxReconnects(d.cfg.MaxReconnects),
		gonats.ReconnectWait(d.cfg.ReconnectWait),
		gonats.DisconnectErrHandler(c.handleDisconnect),
		gonats.ReconnectHandler(c.handleReconnect),
		gonats.ClosedHandler(c.handleClosed),
		gonats.ErrorHandler(c.handleError),
	}
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
	return opts
}

// Dial connects, binds the bucket and returns a ready connection
func (d *Dialer) Dial(ctx context.Context) (kvstore.Conn, error) {
	c := &conn{dialer: d}

	timeout := d.cfg.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	type result struct {
		nc  *gonats.Conn
		err error
	}
	connectDone := make(chan result, 1)
	go func() {
		nc, err := gonats.Connect(d.cfg.URL, d.connectionOptions(c, timeout)...)
		connectDone <- result{nc, err}
	}()

	var nc *gonats.Conn
	select {
	case r := <-connectDone:
		if r.err != nil {
			d.fail("dial", r.err)
			return nil, errors.WrapTransient(r.err, "jskv", "Dial", "connect")
		}
		nc = r.nc
	case <-ctx.Done():
		go func() {
			if r := <-connectDone; r.nc != nil {
				r.nc.Close()
			}
		}()
		return nil, errors.WrapTransient(ctx.Err(), "jskv", "Dial", "connect")
	}
	d.observer.OnConnect(nc.ConnectedUrl())

	js, err := jetstream.New(nc)
	if err != nil {
		c.closing.Store(true)
		nc.Close()
		return nil, errors.WrapFatal(err, "jskv", "Dial", "create jetstream context")
	}
	kv, err := d.bind(ctx, js)
	if err != nil {
		c.closing.Store(true)
		nc.Close()
		d.fail("bind", err)
		return nil, err
	}

	c.nc = nc
	c.kv = kv
	d.observer.OnReady()
	return c, nil
}

// bind looks the bucket up and creates it when missing. A concurrent creator winning
// the race is retried as a lookup.
func (d *Dialer) bind(ctx context.Context, js jetstream.JetStream) (jetstream.KeyValue, error) {
	var kv jetstream.KeyValue
	err := backoff.Retry(ctx, backoff.New(50*time.Millisecond, time.Second), d.cfg.BindAttempts,
		func(ctx context.Context) error {
			bucket, err := js.KeyValue(ctx, d.cfg.Bucket)
			if err == nil {
				kv = bucket
				return nil
			}
			if !stderrors.Is(err, jetstream.ErrBucketNotFound) {
				return err
			}

			bucket, err = js.CreateKeyValue(ctx, d.cfg.keyValueConfig())
			if err != nil {
				return err
			}
			d.logger.Info("Created key-value bucket", "storage", d.cfg.Storage, "history", d.cfg.History)
			kv = bucket
			return nil
		})
	if err != nil {
		return nil, errors.WrapTransient(err, "jskv", "Dial", "bind bucket "+d.cfg.Bucket)
	}
	return kv, nil
}

func (d *Dialer) fail(op string, err error) {
	d.metrics.RecordError("jetstream", op)
	d.observer.OnError(err)
}

// conn is one pooled bucket connection
type conn struct {
	dialer *Dialer
	nc     *gonats.Conn
	kv     jetstream.KeyValue

	// closing suppresses the disconnect callback nats.go fires during our own Close
	closing    atomic.Bool
	closedOnce sync.Once

	scan snapshot
}

var _ kvstore.Conn = (*conn)(nil)

func (c *conn) handleDisconnect(_ *gonats.Conn, err error) {
	if c.closing.Load() {
		return
	}
	if err != nil {
		c.dialer.logger.Warn("Connection lost", "error", err)
		c.dialer.fail("disconnect", err)
	}
	c.dialer.observer.OnReconnecting()
}

func (c *conn) handleReconnect(nc *gonats.Conn) {
	c.dialer.logger.Info("Reconnected", "server", nc.ConnectedUrl())
	c.dialer.observer.OnConnect(nc.ConnectedUrl())
	c.dialer.observer.OnReady()
}

func (c *conn) handleClosed(*gonats.Conn) {
	c.closedOnce.Do(c.dialer.observer.OnClose)
}

func (c *conn) handleError(_ *gonats.Conn, _ *gonats.Subscription, err error) {
	if err != nil {
		c.dialer.fail("async", err)
	}
}

// opErr reports and returns a failed bucket operation
func (c *conn) opErr(op string, err error) error {
	c.dialer.fail(op, err)
	return err
}

func (c *conn) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k := encodeKey(key)
	if ttl <= 0 {
		if _, err := c.kv.Put(ctx, k, value); err != nil {
			return c.opErr("put", err)
		}
		return nil
	}

	// Per-key TTL is only accepted on create, so clear the key first. A writer slipping
	// in between makes Create fail with ErrKeyExists; purge and try again.
	err := backoff.Retry(ctx, backoff.New(10*time.Millisecond, 100*time.Millisecond), 3,
		func(ctx context.Context) error {
			if err := c.kv.Purge(ctx, k); err != nil {
				return backoff.NonRetryable(err)
			}
			_, err := c.kv.Create(ctx, k, value, jetstream.KeyTTL(ttl))
			if err != nil && !stderrors.Is(err, jetstream.ErrKeyExists) {
				return backoff.NonRetryable(err)
			}
			return err
		})
	if err != nil {
		return c.opErr("put", err)
	}
	return nil
}

func (c *conn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, err := c.kv.Get(ctx, encodeKey(key))
	if stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, c.opErr("get", err)
	}
	return entry.Value(), true, nil
}

func (c *conn) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

func (c *conn) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, encodeKey(key))
	if err != nil && !stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return c.opErr("delete", err)
	}
	return nil
}

func (c *conn) Scan(ctx context.Context, cursor, pattern string, count int) (string, []string, error) {
	keys, err := c.scan.keysFor(cursor, pattern, func() ([]string, error) {
		return c.matchingKeys(ctx, pattern)
	})
	if err != nil {
		return "", nil, err
	}
	next, out, err := page(keys, cursor, count)
	if err != nil || next == kvstore.StartCursor {
		c.scan.release()
	}
	return next, out, err
}

// matchingKeys lists the bucket and returns the decoded keys matching pattern, sorted
func (c *conn) matchingKeys(ctx context.Context, pattern string) ([]string, error) {
	lister, err := c.kv.ListKeys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, c.opErr("list", err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for encoded := range lister.Keys() {
		key, err := decodeKey(encoded)
		if err != nil {
			c.dialer.logger.Debug("Skipping foreign key", "key", encoded, "error", err)
			continue
		}
		if pattern == "" || match.Match(key, pattern) {
			keys = append(keys, key)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (c *conn) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	values := make([][]byte, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(getManyConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			data, ok, err := c.Get(gctx, key)
			if err != nil {
				return err
			}
			if ok {
				values[i] = data
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

func (c *conn) Ping(ctx context.Context) error {
	if !c.nc.IsConnected() {
		return errors.ErrNotConnected
	}
	if err := c.nc.FlushWithContext(ctx); err != nil {
		return err
	}
	_, err := c.nc.RTT()
	return err
}

func (c *conn) Close() error {
	if c.closing.Swap(true) {
		return nil
	}
	c.nc.Close()
	return nil
}
