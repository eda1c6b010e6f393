package kvstore

import (
	"fmt"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/pool"
)

// Defaults
const (
	DefaultScanCount         = 100
	DefaultMaxScanIterations = 100_000
)

// Config configures a Store
type Config struct {
	Pool pool.Config `json:"pool" yaml:"pool"`
	// ScanCount is the page-size hint used when a caller passes count <= 0
	ScanCount int `json:"scan_count,omitempty" yaml:"scan_count,omitempty"`
	// MaxScanIterations bounds the cursor loop of ScanKeys and ScanAndGet
	MaxScanIterations int `json:"max_scan_iterations,omitempty" yaml:"max_scan_iterations,omitempty"`
}

// DefaultConfig returns the default store configuration
func DefaultConfig() Config {
	return Config{
		Pool:              pool.DefaultConfig(),
		ScanCount:         DefaultScanCount,
		MaxScanIterations: DefaultMaxScanIterations,
	}
}

func (c Config) withDefaults() Config {
	if c.ScanCount <= 0 {
		c.ScanCount = DefaultScanCount
	}
	if c.MaxScanIterations <= 0 {
		c.MaxScanIterations = DefaultMaxScanIterations
	}
	return c
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.ScanCount < 0 || c.MaxScanIterations < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: negative scan settings", errors.ErrInvalidConfig),
			"Store", "Validate", "check scan settings")
	}
	return c.Pool.Validate()
}
