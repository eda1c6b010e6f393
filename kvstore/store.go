package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/health"
	"github.com/c360/semlink/metric"
	"github.com/c360/semlink/pool"
)

// Entry is one key and its JSON value. Value is nil when the key vanished between
// scan and fetch or its payload is not valid JSON.
type Entry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Option is a functional option for configuring a Store
type Option func(*storeOptions)

type storeOptions struct {
	name     string
	logger   *slog.Logger
	registry *metric.MetricsRegistry
}

// WithName sets the store name, used for the pool's logs, metrics and health
func WithName(name string) Option {
	return func(o *storeOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records pool metrics into the registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *storeOptions) {
		o.registry = registry
	}
}

// Store is the key-value facade. A nil *Store is valid to call; every method
// returns ErrNotInitialized.
type Store struct {
	cfg    Config
	pool   *pool.Pool[Conn]
	logger *slog.Logger
}

// New creates a Store. Connections are opened lazily on first use.
func New(factory pool.Factory[Conn], cfg Config, opts ...Option) (*Store, error) {
	o := storeOptions{name: "kvstore", logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.withDefaults()

	p, err := pool.New(factory, cfg.Pool,
		pool.WithName(o.name),
		pool.WithLogger(o.logger),
		pool.WithMetrics(o.registry))
	if err != nil {
		return nil, errors.Wrap(err, "Store", "New", "create pool")
	}

	return &Store{
		cfg:    cfg,
		pool:   p,
		logger: o.logger.With("component", "kvstore", "store", o.name),
	}, nil
}

func notInitialized(method string) error {
	return errors.WrapInvalid(errors.ErrNotInitialized, "Store", method, "check store")
}

// expiry rounds ttl up to whole seconds. No ttl, or ttl <= 0, means no expiry.
func expiry(ttl []time.Duration) time.Duration {
	if len(ttl) == 0 || ttl[0] <= 0 {
		return 0
	}
	secs := (ttl[0] + time.Second - 1) / time.Second
	return secs * time.Second
}

// Set stores value as JSON. An optional ttl expires the key, rounded up to whole seconds.
func (s *Store) Set(ctx context.Context, key string, value any, ttl ...time.Duration) error {
	if s == nil {
		return notInitialized("Set")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "Store", "Set", "encode value")
	}

	expires := expiry(ttl)
	return s.pool.With(ctx, func(ctx context.Context, c Conn) error {
		if err := c.Set(ctx, key, data, expires); err != nil {
			return errors.WrapTransient(err, "Store", "Set", "write key")
		}
		return nil
	})
}

// GetRaw returns the stored JSON for key, or nil when the key is absent or its payload
// is not valid JSON
func (s *Store) GetRaw(ctx context.Context, key string) (json.RawMessage, error) {
	if s == nil {
		return nil, notInitialized("GetRaw")
	}

	var raw []byte
	err := s.pool.With(ctx, func(ctx context.Context, c Conn) error {
		data, ok, err := c.Get(ctx, key)
		if err != nil {
			return errors.WrapTransient(err, "Store", "Get", "read key")
		}
		if ok {
			raw = data
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, err
	}
	if !json.Valid(raw) {
		s.logger.Warn("Discarding undecodable value", "key", key, "bytes", len(raw))
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// Get decodes the value for key into out. It returns false when the key is absent or
// the stored payload cannot be decoded into out.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	if s == nil {
		return false, notInitialized("Get")
	}
	raw, err := s.GetRaw(ctx, key)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn("Failed to decode value", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// Update replaces the value of an existing key. The existence check and the write are
// separate round trips.
func (s *Store) Update(ctx context.Context, key string, value any, ttl ...time.Duration) error {
	if s == nil {
		return notInitialized("Update")
	}
	exists, err := s.Has(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key), "Store", "Update", "check existence")
	}
	return s.Set(ctx, key, value, ttl...)
}

// Remove deletes key. Removing a missing key is a no-op.
func (s *Store) Remove(ctx context.Context, key string) error {
	if s == nil {
		return notInitialized("Remove")
	}
	return s.pool.With(ctx, func(ctx context.Context, c Conn) error {
		if err := c.Delete(ctx, key); err != nil {
			return errors.WrapTransient(err, "Store", "Remove", "delete key")
		}
		return nil
	})
}

// Has reports whether key exists
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	if s == nil {
		return false, notInitialized("Has")
	}
	return pool.Do(ctx, s.pool, func(ctx context.Context, c Conn) (bool, error) {
		exists, err := c.Exists(ctx, key)
		if err != nil {
			return false, errors.WrapTransient(err, "Store", "Has", "check key")
		}
		return exists, nil
	})
}

// Ping borrows a connection and probes it
func (s *Store) Ping(ctx context.Context) error {
	if s == nil {
		return notInitialized("Ping")
	}
	return s.pool.With(ctx, func(ctx context.Context, c Conn) error {
		if err := c.Ping(ctx); err != nil {
			return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err),
				"Store", "Ping", "probe connection")
		}
		return nil
	})
}

// Shutdown drains and closes every pooled connection. The next operation reconnects.
func (s *Store) Shutdown(ctx context.Context) error {
	if s == nil {
		return notInitialized("Shutdown")
	}
	return s.pool.Shutdown(ctx)
}

// Stats returns pool statistics
func (s *Store) Stats() pool.Stats {
	if s == nil {
		return pool.Stats{}
	}
	return s.pool.Stats()
}

// Health implements health.Reporter
func (s *Store) Health() health.Status {
	if s == nil {
		return health.NewUnhealthy("kvstore", "store not initialized")
	}
	return s.pool.Health()
}
