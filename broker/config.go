package broker

import (
	"fmt"
	"time"

	"github.com/c360/semlink/errors"
)

// Default timings
const (
	DefaultReconnectInterval    = 1000 * time.Millisecond
	DefaultMaxReconnectInterval = 30000 * time.Millisecond
	DefaultConnectionTimeout    = 5000 * time.Millisecond
	DefaultOperationTimeout     = 5 * time.Second
	DefaultHandlerTimeout       = 30 * time.Second
)

// Config holds the timing parameters of a Manager. The broker URL and transport
// options belong to the Dialer.
type Config struct {
	// ReconnectInterval is the first backoff wait after a failure
	ReconnectInterval time.Duration `json:"reconnect_interval" yaml:"reconnect_interval"`
	// MaxReconnectInterval caps the backoff wait
	MaxReconnectInterval time.Duration `json:"max_reconnect_interval" yaml:"max_reconnect_interval"`
	// ConnectionTimeout bounds a single connect attempt
	ConnectionTimeout time.Duration `json:"connection_timeout" yaml:"connection_timeout"`
	// OperationTimeout bounds subscribe, publish and transport teardown
	OperationTimeout time.Duration `json:"operation_timeout" yaml:"operation_timeout"`
	// HandlerTimeout is the deadline on the context passed to each handler invocation
	HandlerTimeout time.Duration `json:"handler_timeout" yaml:"handler_timeout"`
}

// DefaultConfig returns the default manager configuration
func DefaultConfig() Config {
	return Config{
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectInterval: DefaultMaxReconnectInterval,
		ConnectionTimeout:    DefaultConnectionTimeout,
		OperationTimeout:     DefaultOperationTimeout,
		HandlerTimeout:       DefaultHandlerTimeout,
	}
}

// withDefaults fills zero fields from DefaultConfig
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	if c.MaxReconnectInterval == 0 {
		c.MaxReconnectInterval = d.MaxReconnectInterval
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = d.ConnectionTimeout
	}
	if c.OperationTimeout == 0 {
		c.OperationTimeout = d.OperationTimeout
	}
	if c.HandlerTimeout == 0 {
		c.HandlerTimeout = d.HandlerTimeout
	}
	return c
}

// Validate checks the configuration for consistency
func (c Config) Validate() error {
	switch {
	case c.ReconnectInterval < 0, c.MaxReconnectInterval < 0, c.ConnectionTimeout < 0,
		c.OperationTimeout < 0, c.HandlerTimeout < 0:
		return errors.WrapInvalid(
			fmt.Errorf("%w: durations must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "check durations")
	case c.MaxReconnectInterval != 0 && c.MaxReconnectInterval < c.ReconnectInterval:
		return errors.WrapInvalid(
			fmt.Errorf("%w: max_reconnect_interval %s is below reconnect_interval %s",
				errors.ErrInvalidConfig, c.MaxReconnectInterval, c.ReconnectInterval),
			"Config", "Validate", "check backoff bounds")
	}
	return nil
}
