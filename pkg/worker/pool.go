package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semlink/metric"
)

// Config sizes a pool
type Config struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queue_size"`
}

// DefaultConfig returns a pool of four workers with room for 1024 queued items
func DefaultConfig() Config {
	return Config{Workers: 4, QueueSize: 1024}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	return c
}

type options struct {
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	prefix   string
}

// Option configures a Pool
type Option func(*options)

// WithLogger sets the logger used to report processing failures
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics registers the pool's Prometheus metrics, named with prefix
func WithMetrics(registry *metric.MetricsRegistry, prefix string) Option {
	return func(o *options) {
		o.registry = registry
		o.prefix = prefix
	}
}

// Pool processes items of type T on a fixed set of goroutines
type Pool[T any] struct {
	cfg     Config
	process func(context.Context, T) error
	logger  *slog.Logger
	metrics *poolMetrics

	queue chan T
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Stats is a snapshot of pool counters
type Stats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

type poolMetrics struct {
	queueDepth prometheus.Gauge
	submitted  prometheus.Counter
	dropped    prometheus.Counter
	duration   *prometheus.HistogramVec
}

// New creates a pool. It panics with ErrNilProcessor when process is nil.
func New[T any](cfg Config, process func(context.Context, T) error, opts ...Option) *Pool[T] {
	if process == nil {
		panic(ErrNilProcessor)
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	cfg = cfg.withDefaults()

	p := &Pool[T]{
		cfg:     cfg,
		process: process,
		logger:  o.logger.With("component", "worker_pool"),
		queue:   make(chan T, cfg.QueueSize),
	}
	if o.registry != nil && o.prefix != "" {
		p.metrics = newPoolMetrics(o.registry, o.prefix, p.logger)
	}
	return p
}

func newPoolMetrics(registry *metric.MetricsRegistry, prefix string, logger *slog.Logger) *poolMetrics {
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "semlink",
			Name:      prefix + "_queue_depth",
			Help:      "Items waiting in the worker pool queue",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semlink",
			Name:      prefix + "_submitted_total",
			Help:      "Items accepted by the worker pool",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semlink",
			Name:      prefix + "_dropped_total",
			Help:      "Items dropped because the queue was full",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "semlink",
			Name:      prefix + "_processing_duration_seconds",
			Help:      "Time spent processing one item",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"status"}),
	}

	const service = "worker_pool"
	errs := []error{
		registry.RegisterGauge(service, prefix+"_queue_depth", m.queueDepth),
		registry.RegisterCounter(service, prefix+"_submitted_total", m.submitted),
		registry.RegisterCounter(service, prefix+"_dropped_total", m.dropped),
		registry.RegisterHistogramVec(service, prefix+"_processing_duration_seconds", m.duration),
	}
	for _, err := range errs {
		if err != nil {
			logger.Warn("Failed to register worker pool metric", "prefix", prefix, "error", err)
		}
	}
	return m
}

// Start launches the workers. Processing contexts derive from ctx; cancelling it
// abandons queued items.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrPoolAlreadyStarted
	}

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
	p.started = true
	return nil
}

// Submit queues an item without blocking
func (p *Pool[T]) Submit(item T) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case !p.started:
		return ErrPoolNotStarted
	case p.stopped:
		return ErrPoolStopped
	}

	select {
	case p.queue <- item:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.queue)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Stop refuses new work and waits for queued items to be processed. When ctx ends
// first, in-flight processing is cancelled and ctx's error is returned.
func (p *Pool[T]) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns current counters
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Workers:    p.cfg.Workers,
		QueueSize:  p.cfg.QueueSize,
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

func (p *Pool[T]) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(ctx, item)
		}
	}
}

func (p *Pool[T]) run(ctx context.Context, item T) {
	start := time.Now()
	err := p.process(ctx, item)

	p.processed.Add(1)
	status := "success"
	if err != nil {
		p.failed.Add(1)
		status = "error"
		p.logger.Warn("Work item failed", "error", err)
	}
	if p.metrics != nil {
		p.metrics.queueDepth.Set(float64(len(p.queue)))
		p.metrics.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
