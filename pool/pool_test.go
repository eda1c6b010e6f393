package pool

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/metric"
)

// resource is a pooled test resource
type resource struct {
	id      int64
	healthy atomic.Bool
}

// testFactory counts lifecycle calls and lets tests inject failures
type testFactory struct {
	nextID    atomic.Int64
	created   atomic.Int64
	destroyed atomic.Int64
	delay     time.Duration

	mu        sync.Mutex
	createErr error
	resources []*resource
}

func (f *testFactory) Create(ctx context.Context) (*resource, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	r := &resource{id: f.nextID.Add(1)}
	r.healthy.Store(true)
	f.created.Add(1)

	f.mu.Lock()
	f.resources = append(f.resources, r)
	f.mu.Unlock()
	return r, nil
}

func (f *testFactory) Destroy(*resource) error {
	f.destroyed.Add(1)
	return nil
}

func (f *testFactory) Validate(_ context.Context, r *resource) bool {
	return r.healthy.Load()
}

func (f *testFactory) failCreates(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

func (f *testFactory) all() []*resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*resource(nil), f.resources...)
}

func newPool(t *testing.T, f Factory[*resource], cfg Config, opts ...Option) *Pool[*resource] {
	t.Helper()
	opts = append([]Option{WithRefillBackoff(time.Millisecond, 5*time.Millisecond, 3)}, opts...)
	p, err := New(f, cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func noop(context.Context, *resource) error { return nil }

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero fills defaults", Config{}.withDefaults(), false},
		{"min above max", Config{Min: 5, Max: 2}, true},
		{"negative min", Config{Min: -1, Max: 2}, true},
		{"zero max", Config{Max: 0}, true},
		{"negative timeout", Config{Min: 1, Max: 2, AcquireTimeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}

	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultMin, cfg.Min)
	assert.Equal(t, DefaultMax, cfg.Max)
	assert.False(t, cfg.TestOnBorrow, "TestOnBorrow is taken as given")
}

func TestNew_Validation(t *testing.T) {
	_, err := New[*resource](nil, DefaultConfig())
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = New[*resource](&testFactory{}, Config{Min: 3, Max: 1})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestNilPool(t *testing.T) {
	var p *Pool[*resource]
	assert.ErrorIs(t, p.With(context.Background(), noop), errors.ErrNotInitialized)
	assert.ErrorIs(t, p.Shutdown(context.Background()), errors.ErrNotInitialized)
	_, err := Do(context.Background(), p, func(context.Context, *resource) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, errors.ErrNotInitialized)
	assert.Equal(t, Stats{}, p.Stats())
	assert.True(t, p.Health().IsUnhealthy())
}

func TestLazyInitialization(t *testing.T) {
	f := &testFactory{}
	p := newPool(t, f, DefaultConfig())

	assert.Equal(t, int64(0), f.created.Load(), "New must not create resources")
	assert.False(t, p.Stats().Initialized)
	assert.True(t, p.Health().IsHealthy())

	require.NoError(t, p.With(context.Background(), noop))

	stats := p.Stats()
	assert.True(t, stats.Initialized)
	assert.Equal(t, DefaultMin, stats.Total, "warm-up creates min entries")
	assert.Equal(t, 0, stats.Borrowed)
	assert.Equal(t, int64(DefaultMin), f.created.Load())
}

func TestConcurrentFirstUseBuildsOnce(t *testing.T) {
	f := &testFactory{delay: 10 * time.Millisecond}
	p := newPool(t, f, Config{Min: 2, Max: 10, TestOnBorrow: true})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.With(context.Background(), func(context.Context, *resource) error {
				time.Sleep(time.Millisecond)
				return nil
			}))
		}()
	}
	wg.Wait()

	gen := p.current()
	require.NotNil(t, gen)
	stats := p.Stats()
	assert.LessOrEqual(t, stats.Total, 10)
	assert.LessOrEqual(t, f.created.Load(), int64(10), "a single underlying pool bounds creation at max")
}

func TestWith_ReleasesOnError(t *testing.T) {
	f := &testFactory{}
	p := newPool(t, f, Config{Min: 1, Max: 1, TestOnBorrow: true})
	boom := stderrors.New("action failed")

	err := p.With(context.Background(), func(context.Context, *resource) error { return boom })
	assert.ErrorIs(t, err, boom)

	stats := p.Stats()
	assert.Equal(t, 0, stats.Borrowed)
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, int64(1), stats.ActionErrors)

	// With max 1 a leaked entry would block this acquire
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.With(ctx, noop))
	assert.Equal(t, int64(1), f.created.Load())
}

func TestWith_DestroysOnPanic(t *testing.T) {
	f := &testFactory{}
	p := newPool(t, f, Config{Min: 1, Max: 1, TestOnBorrow: true})

	assert.Panics(t, func() {
		_ = p.With(context.Background(), func(context.Context, *resource) error { panic("boom") })
	})

	assert.Eventually(t, func() bool { return f.destroyed.Load() == 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return p.Stats().Idle == 1 }, time.Second, time.Millisecond,
		"pool tops back up to min")
	require.NoError(t, p.With(context.Background(), noop))
}

func TestDo_ReturnsValue(t *testing.T) {
	p := newPool(t, &testFactory{}, DefaultConfig())

	id, err := Do(context.Background(), p, func(_ context.Context, r *resource) (int64, error) {
		return r.id, nil
	})
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestTestOnBorrow_ReplacesInvalidEntries(t *testing.T) {
	f := &testFactory{}
	p := newPool(t, f, Config{Min: 2, Max: 4, TestOnBorrow: true})
	require.NoError(t, p.With(context.Background(), noop))

	for _, r := range f.all() {
		r.healthy.Store(false)
	}

	var got *resource
	require.NoError(t, p.With(context.Background(), func(_ context.Context, r *resource) error {
		got = r
		return nil
	}))
	assert.True(t, got.healthy.Load(), "never hand out an entry that failed validation")
	failures := p.Stats().ValidationFailures
	assert.GreaterOrEqual(t, failures, int64(1))
	assert.LessOrEqual(t, failures, int64(2))
}

func TestTestOnBorrow_Disabled(t *testing.T) {
	f := &testFactory{}
	p := newPool(t, f, Config{Min: 1, Max: 1, TestOnBorrow: false})
	require.NoError(t, p.With(context.Background(), noop))
	f.all()[0].healthy.Store(false)

	var got *resource
	require.NoError(t, p.With(context.Background(), func(_ context.Context, r *resource) error {
		got = r
		return nil
	}))
	assert.False(t, got.healthy.Load())
	assert.Equal(t, int64(0), p.Stats().ValidationFailures)
}

func TestResourceExhausted(t *testing.T) {
	f := &testFactory{}
	p := newPool(t, brokenFactory{f}, Config{Min: 1, Max: 3, TestOnBorrow: true})

	err := p.With(context.Background(), noop)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrResourceExhausted)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, int64(4), p.Stats().ValidationFailures, "max+1 tries")
	assert.GreaterOrEqual(t, f.created.Load(), int64(4))
}

// brokenFactory fails every validation
type brokenFactory struct{ *testFactory }

func (brokenFactory) Validate(context.Context, *resource) bool { return false }

func TestCreateFailurePropagates(t *testing.T) {
	f := &testFactory{}
	refused := stderrors.New("connection refused")
	f.failCreates(refused)
	p := newPool(t, f, Config{Min: 1, Max: 2, TestOnBorrow: true, AcquireTimeout: time.Second})

	err := p.With(context.Background(), noop)
	require.Error(t, err)
	assert.ErrorIs(t, err, refused)
	assert.Positive(t, p.Stats().CreateFailures)

	assert.Eventually(t, func() bool { return p.Health().IsUnhealthy() }, time.Second, time.Millisecond)

	f.failCreates(nil)
	assert.Eventually(t, func() bool { return p.With(context.Background(), noop) == nil }, time.Second, 5*time.Millisecond)
}

func TestShutdown(t *testing.T) {
	f := &testFactory{}
	p := newPool(t, f, DefaultConfig())

	// Never built: no-op
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int64(0), f.created.Load())

	require.NoError(t, p.With(context.Background(), noop))
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()), "idempotent")

	assert.Eventually(t, func() bool { return f.destroyed.Load() == f.created.Load() }, time.Second, time.Millisecond)
	assert.False(t, p.Stats().Initialized)

	// Next operation rebuilds lazily
	require.NoError(t, p.With(context.Background(), noop))
	assert.True(t, p.Stats().Initialized)
	assert.Equal(t, int64(2*DefaultMin), f.created.Load())
}

func TestShutdown_WaitsForBorrowed(t *testing.T) {
	p := newPool(t, &testFactory{}, Config{Min: 1, Max: 1, TestOnBorrow: true})

	borrowed := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = p.With(context.Background(), func(context.Context, *resource) error {
			close(borrowed)
			<-release
			return nil
		})
	}()
	<-borrowed

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	p := newPool(t, &testFactory{}, DefaultConfig(), WithName("kv"), WithMetrics(registry))

	require.NoError(t, p.With(context.Background(), noop))
	assert.Equal(t, "kv", p.Name())
	assert.True(t, p.Health().IsHealthy())
	assert.Equal(t, "kv", p.Health().Component)
}
