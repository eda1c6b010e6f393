package broker

import (
	"fmt"
	"log/slog"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/metric"
)

// Option is a functional option for configuring the Manager
type Option func(*Manager) error

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger != nil {
			m.logger = logger
		}
		return nil
	}
}

// WithObserver sets the lifecycle observer
func WithObserver(o Observer) Option {
	return func(m *Manager) error {
		if o == nil {
			return errors.WrapInvalid(fmt.Errorf("nil observer"), "Manager", "WithObserver", "set observer")
		}
		m.observer = o
		return nil
	}
}

// WithName sets the name used in logs, metrics and health reports
func WithName(name string) Option {
	return func(m *Manager) error {
		if name == "" {
			return errors.WrapInvalid(fmt.Errorf("empty name"), "Manager", "WithName", "set name")
		}
		m.name = name
		return nil
	}
}

// WithMetrics records broker metrics into the registry's core metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) error {
		m.metrics = registry.CoreMetrics()
		return nil
	}
}
