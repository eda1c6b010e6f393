package pool

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"golang.org/x/sync/singleflight"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/health"
	"github.com/c360/semlink/metric"
	"github.com/c360/semlink/pkg/backoff"
)

// Factory creates, destroys and probes pooled resources
type Factory[T any] interface {
	// Create instantiates one resource
	Create(ctx context.Context) (T, error)
	// Destroy gracefully closes a resource
	Destroy(resource T) error
	// Validate runs a lightweight liveness probe. false discards the resource.
	Validate(ctx context.Context, resource T) bool
}

// Stats is a point-in-time view of a Pool
type Stats struct {
	Initialized        bool  `json:"initialized"`
	Total              int   `json:"total"`
	Idle               int   `json:"idle"`
	Borrowed           int   `json:"borrowed"`
	Constructing       int   `json:"constructing"`
	Max                int   `json:"max"`
	Acquires           int64 `json:"acquires"`
	ValidationFailures int64 `json:"validation_failures"`
	CreateFailures     int64 `json:"create_failures"`
	ActionErrors       int64 `json:"action_errors"`
}

// Pool is a lazily built, bounded pool of resources of type T.
// A nil *Pool is valid to call; every method returns ErrNotInitialized.
type Pool[T any] struct {
	factory Factory[T]
	cfg     Config
	opts    options
	logger  *slog.Logger
	metrics *metric.Metrics

	build singleflight.Group
	mu    sync.RWMutex
	live  *generation[T]

	validationFailures atomic.Int64
	createFailures     atomic.Int64
	actionErrors       atomic.Int64
	lastCreateErr      atomic.Value // string
}

// generation is one underlying puddle pool, from lazy build to Shutdown
type generation[T any] struct {
	inner  *puddle.Pool[T]
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	refilling bool
	wg        sync.WaitGroup
}

// New creates a Pool. No resources are created until the first operation.
func New[T any](factory Factory[T], cfg Config, opts ...Option) (*Pool[T], error) {
	if factory == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: factory is required", errors.ErrMissingConfig),
			"Pool", "New", "check factory")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pool[T]{
		factory: factory,
		cfg:     cfg,
		opts:    o,
		logger:  o.logger.With("component", "pool", "pool", o.name),
		metrics: o.registry.CoreMetrics(),
	}
	p.lastCreateErr.Store("")
	return p, nil
}

func notInitialized(method string) error {
	return errors.WrapInvalid(errors.ErrNotInitialized, "Pool", method, "check pool")
}

// Name returns the pool name
func (p *Pool[T]) Name() string {
	if p == nil {
		return ""
	}
	return p.opts.name
}

// Config returns the effective configuration
func (p *Pool[T]) Config() Config {
	if p == nil {
		return Config{}
	}
	return p.cfg
}

func (p *Pool[T]) current() *generation[T] {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.live
}

// get returns the live generation, building it on first use
func (p *Pool[T]) get() (*generation[T], error) {
	if g := p.current(); g != nil {
		return g, nil
	}

	v, err, _ := p.build.Do("build", func() (any, error) {
		if g := p.current(); g != nil {
			return g, nil
		}

		inner, err := puddle.NewPool(&puddle.Config[T]{
			Constructor: p.construct,
			Destructor:  p.destruct,
			MaxSize:     int32(p.cfg.Max),
		})
		if err != nil {
			return nil, errors.WrapFatal(err, "Pool", "build", "create pool")
		}

		ctx, cancel := context.WithCancel(context.Background())
		g := &generation[T]{inner: inner, ctx: ctx, cancel: cancel}
		p.warmUp(g)

		p.mu.Lock()
		p.live = g
		p.mu.Unlock()

		p.logger.Info("Pool initialized", "min", p.cfg.Min, "max", p.cfg.Max,
			"entries", inner.Stat().TotalResources())
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*generation[T]), nil
}

// warmUp creates Min entries. Failures are logged and left to the refill loop.
func (p *Pool[T]) warmUp(g *generation[T]) {
	ctx, cancel := context.WithTimeout(g.ctx, p.cfg.AcquireTimeout)
	defer cancel()

	for i := 0; i < p.cfg.Min; i++ {
		if err := g.inner.CreateResource(ctx); err != nil {
			p.logger.Warn("Pool warm-up failed", "created", i, "min", p.cfg.Min, "error", err)
			p.refill(g)
			break
		}
	}
	p.recordSize(g)
}

func (p *Pool[T]) construct(ctx context.Context) (T, error) {
	resource, err := p.factory.Create(ctx)
	if err != nil {
		p.createFailures.Add(1)
		p.lastCreateErr.Store(err.Error())
		p.metrics.RecordCreateFailure(p.opts.name)
		p.logger.Warn("Failed to create pool entry", "error", err)
		return resource, err
	}
	p.lastCreateErr.Store("")
	return resource, nil
}

func (p *Pool[T]) destruct(resource T) {
	if err := p.factory.Destroy(resource); err != nil {
		p.logger.Debug("Failed to destroy pool entry", "error", err)
	}
}

// refill tops the generation back up to Min in the background
func (p *Pool[T]) refill(g *generation[T]) {
	g.mu.Lock()
	if g.closed || g.refilling {
		g.mu.Unlock()
		return
	}
	g.refilling = true
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer g.wg.Done()
		defer func() {
			g.mu.Lock()
			g.refilling = false
			g.mu.Unlock()
		}()

		for g.ctx.Err() == nil && int(g.inner.Stat().TotalResources()) < p.cfg.Min {
			err := backoff.Retry(g.ctx, backoff.New(p.opts.refillBase, p.opts.refillMax), p.opts.refillTries,
				func(ctx context.Context) error {
					err := g.inner.CreateResource(ctx)
					if stderrors.Is(err, puddle.ErrClosedPool) {
						return backoff.NonRetryable(err)
					}
					return err
				})
			if err != nil {
				if g.ctx.Err() == nil {
					p.logger.Warn("Pool refill gave up", "min", p.cfg.Min,
						"entries", g.inner.Stat().TotalResources(), "error", err)
				}
				return
			}
		}
		p.recordSize(g)
	}()
}

func (p *Pool[T]) recordSize(g *generation[T]) {
	stat := g.inner.Stat()
	p.metrics.RecordPoolSize(p.opts.name, int(stat.TotalResources()), int(stat.AcquiredResources()))
}

// acquire borrows an entry, validating it when TestOnBorrow is set
func (p *Pool[T]) acquire(ctx context.Context, g *generation[T]) (*puddle.Resource[T], error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	tries := p.cfg.Max + 1
	for try := 1; try <= tries; try++ {
		start := time.Now()
		res, err := g.inner.Acquire(ctx)
		p.metrics.RecordAcquireDuration(p.opts.name, time.Since(start))
		if err != nil {
			if stderrors.Is(err, puddle.ErrClosedPool) {
				return nil, errors.WrapTransient(errors.ErrPoolClosed, "Pool", "With", "acquire resource")
			}
			return nil, errors.WrapTransient(err, "Pool", "With", "acquire resource")
		}

		if !p.cfg.TestOnBorrow || p.factory.Validate(ctx, res.Value()) {
			return res, nil
		}

		p.validationFailures.Add(1)
		p.metrics.RecordValidationFailure(p.opts.name)
		p.logger.Warn("Discarding pool entry that failed validation", "try", try, "of", tries)
		res.Destroy()
		p.refill(g)
	}

	return nil, errors.WrapFatal(
		fmt.Errorf("%w: no healthy entry after %d tries", errors.ErrResourceExhausted, tries),
		"Pool", "With", "acquire healthy resource")
}

// With borrows a resource for the duration of action. The resource is always handed
// back: released after action returns, destroyed if action panics. An action error is
// logged and returned unchanged.
func (p *Pool[T]) With(ctx context.Context, action func(ctx context.Context, resource T) error) error {
	if p == nil {
		return notInitialized("With")
	}

	var (
		g   *generation[T]
		res *puddle.Resource[T]
		err error
	)
	// A Shutdown racing with this call closes the generation we picked; rebuild once
	for range 2 {
		if g, err = p.get(); err != nil {
			return err
		}
		res, err = p.acquire(ctx, g)
		if !stderrors.Is(err, errors.ErrPoolClosed) {
			break
		}
	}
	if err != nil {
		return err
	}

	released := false
	defer func() {
		if !released {
			res.Destroy()
			p.refill(g)
		}
		p.recordSize(g)
	}()

	err = action(ctx, res.Value())
	res.Release()
	released = true

	if err != nil {
		p.actionErrors.Add(1)
		p.metrics.RecordActionError(p.opts.name)
		p.logger.Warn("Pool action failed", "error", err)
		return err
	}
	return nil
}

// Do is With for actions that produce a value
func Do[T, R any](ctx context.Context, p *Pool[T], action func(ctx context.Context, resource T) (R, error)) (R, error) {
	var out R
	err := p.With(ctx, func(ctx context.Context, resource T) error {
		var err error
		out, err = action(ctx, resource)
		return err
	})
	return out, err
}

// Shutdown waits for borrowed entries to come back, destroys every entry and resets the
// pool so the next operation builds a new one. It is a no-op when the pool was never
// built. If ctx ends first Shutdown returns its error and the drain finishes in the
// background.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if p == nil {
		return notInitialized("Shutdown")
	}

	p.mu.Lock()
	g := p.live
	p.live = nil
	p.mu.Unlock()
	if g == nil {
		return nil
	}

	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.inner.Close()
		g.wg.Wait()
	}()

	select {
	case <-done:
		p.metrics.RecordPoolSize(p.opts.name, 0, 0)
		p.logger.Info("Pool shut down")
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Pool", "Shutdown", "drain pool")
	}
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	s := Stats{
		Max:                p.cfg.Max,
		ValidationFailures: p.validationFailures.Load(),
		CreateFailures:     p.createFailures.Load(),
		ActionErrors:       p.actionErrors.Load(),
	}
	g := p.current()
	if g == nil {
		return s
	}
	stat := g.inner.Stat()
	s.Initialized = true
	s.Total = int(stat.TotalResources())
	s.Idle = int(stat.IdleResources())
	s.Borrowed = int(stat.AcquiredResources())
	s.Constructing = int(stat.ConstructingResources())
	s.Acquires = stat.AcquireCount()
	return s
}

// Health implements health.Reporter
func (p *Pool[T]) Health() health.Status {
	if p == nil {
		return health.NewUnhealthy("pool", "pool not initialized")
	}

	s := p.Stats()
	r := health.Report{
		Metrics: health.Metrics{
			ErrorCount:        int(s.CreateFailures + s.ValidationFailures),
			MessagesProcessed: s.Acquires,
		},
	}
	lastErr, _ := p.lastCreateErr.Load().(string)

	switch {
	case !s.Initialized:
		r.Healthy = true
		r.Message = "not yet initialized"
	case s.Total == 0 && lastErr != "":
		r.LastError = lastErr
	case s.Total < p.cfg.Min:
		r.Degraded = true
		r.Message = fmt.Sprintf("%d of %d minimum entries", s.Total, p.cfg.Min)
	default:
		r.Healthy = true
		r.Message = fmt.Sprintf("%d entries, %d borrowed", s.Total, s.Borrowed)
	}
	return health.FromReport(p.opts.name, r)
}
