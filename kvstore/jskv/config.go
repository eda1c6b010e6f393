package jskv

import (
	"fmt"
	"regexp"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semlink/errors"
	"github.com/c360/semlink/pkg/tlsutil"
)

var validBucket = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Config configures the NATS connection and the bucket behind each pool entry
type Config struct {
	URL      string `json:"url" yaml:"url"`
	Bucket   string `json:"bucket" yaml:"bucket"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`

	// Bucket settings, used only when the bucket has to be created
	History        uint8         `json:"history,omitempty" yaml:"history,omitempty"`
	Replicas       int           `json:"replicas,omitempty" yaml:"replicas,omitempty"`
	Storage        string        `json:"storage,omitempty" yaml:"storage,omitempty"` // file or memory
	MaxValueSize   int32         `json:"max_value_size,omitempty" yaml:"max_value_size,omitempty"`
	LimitMarkerTTL time.Duration `json:"limit_marker_ttl,omitempty" yaml:"limit_marker_ttl,omitempty"`

	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
	MaxReconnects  int           `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait  time.Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	// BindAttempts bounds lookups/creations of the bucket per new connection
	BindAttempts int `json:"bind_attempts,omitempty" yaml:"bind_attempts,omitempty"`

	TLS tlsutil.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// DefaultConfig returns defaults for a local server
func DefaultConfig() Config {
	return Config{
		URL:            "nats://localhost:4222",
		Bucket:         "semlink",
		History:        1,
		Replicas:       1,
		Storage:        "file",
		LimitMarkerTTL: time.Second,
		ConnectTimeout: 5 * time.Second,
		MaxReconnects:  5,
		ReconnectWait:  time.Second,
		BindAttempts:   3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.History == 0 {
		c.History = d.History
	}
	if c.Replicas == 0 {
		c.Replicas = d.Replicas
	}
	if c.Storage == "" {
		c.Storage = d.Storage
	}
	if c.LimitMarkerTTL == 0 {
		c.LimitMarkerTTL = d.LimitMarkerTTL
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = d.MaxReconnects
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = d.ReconnectWait
	}
	if c.BindAttempts == 0 {
		c.BindAttempts = d.BindAttempts
	}
	return c
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "jskv", "Validate", "check url")
	}
	if c.Bucket == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "jskv", "Validate", "check bucket")
	}
	if !validBucket.MatchString(c.Bucket) {
		return errors.WrapInvalid(fmt.Errorf("%w: bucket name %q", errors.ErrInvalidConfig, c.Bucket),
			"jskv", "Validate", "check bucket")
	}
	if c.Storage != "" && c.Storage != "file" && c.Storage != "memory" {
		return errors.WrapInvalid(fmt.Errorf("%w: storage %q", errors.ErrInvalidConfig, c.Storage),
			"jskv", "Validate", "check storage")
	}
	if c.LimitMarkerTTL < 0 || c.ConnectTimeout < 0 || c.ReconnectWait < 0 || c.BindAttempts < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "jskv", "Validate", "check durations and counts")
	}
	return c.TLS.Validate()
}

func (c Config) keyValueConfig() jetstream.KeyValueConfig {
	storage := jetstream.FileStorage
	if c.Storage == "memory" {
		storage = jetstream.MemoryStorage
	}
	return jetstream.KeyValueConfig{
		Bucket:         c.Bucket,
		Description:    "semlink key-value store",
		History:        c.History,
		Replicas:       c.Replicas,
		Storage:        storage,
		MaxValueSize:   c.MaxValueSize,
		LimitMarkerTTL: c.LimitMarkerTTL,
	}
}
