package pool

import (
	"fmt"
	"time"

	"github.com/c360/semlink/errors"
)

// Default pool parameters
const (
	DefaultMin            = 2
	DefaultMax            = 10
	DefaultAcquireTimeout = 10 * time.Second
)

// Config bounds a Pool. Start from DefaultConfig; zero Min, Max and AcquireTimeout
// fall back to their defaults but TestOnBorrow is taken as given.
type Config struct {
	Min            int           `json:"min" yaml:"min"`
	Max            int           `json:"max" yaml:"max"`
	TestOnBorrow   bool          `json:"test_on_borrow" yaml:"test_on_borrow"`
	AcquireTimeout time.Duration `json:"acquire_timeout" yaml:"acquire_timeout"`
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() Config {
	return Config{
		Min:            DefaultMin,
		Max:            DefaultMax,
		TestOnBorrow:   true,
		AcquireTimeout: DefaultAcquireTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.Max == 0 {
		c.Max = DefaultMax
	}
	if c.Min == 0 && c.Max >= DefaultMin {
		c.Min = DefaultMin
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	return c
}

// Validate checks pool bounds
func (c Config) Validate() error {
	switch {
	case c.Max < 1:
		return errors.WrapInvalid(fmt.Errorf("%w: max %d < 1", errors.ErrInvalidConfig, c.Max),
			"Pool", "Validate", "check max")
	case c.Min < 0:
		return errors.WrapInvalid(fmt.Errorf("%w: min %d < 0", errors.ErrInvalidConfig, c.Min),
			"Pool", "Validate", "check min")
	case c.Min > c.Max:
		return errors.WrapInvalid(fmt.Errorf("%w: min %d > max %d", errors.ErrInvalidConfig, c.Min, c.Max),
			"Pool", "Validate", "check bounds")
	case c.AcquireTimeout < 0:
		return errors.WrapInvalid(fmt.Errorf("%w: negative acquire timeout", errors.ErrInvalidConfig),
			"Pool", "Validate", "check acquire timeout")
	}
	return nil
}
