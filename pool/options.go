package pool

import (
	"log/slog"
	"time"

	"github.com/c360/semlink/metric"
)

// Option is a functional option for configuring a Pool
type Option func(*options)

type options struct {
	name        string
	logger      *slog.Logger
	registry    *metric.MetricsRegistry
	refillBase  time.Duration
	refillMax   time.Duration
	refillTries int
}

func defaultOptions() options {
	return options{
		name:        "pool",
		logger:      slog.Default(),
		refillBase:  100 * time.Millisecond,
		refillMax:   5 * time.Second,
		refillTries: 5,
	}
}

// WithName sets the name used in logs, metrics and health reports
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records pool metrics into the registry's core metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithRefillBackoff sets the backoff used when topping the pool back up to Min
func WithRefillBackoff(base, max time.Duration, tries int) Option {
	return func(o *options) {
		o.refillBase = base
		o.refillMax = max
		if tries > 0 {
			o.refillTries = tries
		}
	}
}
