package jskv

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"

	"github.com/c360/semlink/errors"
)

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"missing url", func(c *Config) { c.URL = "" }, true},
		{"missing bucket", func(c *Config) { c.Bucket = "" }, true},
		{"bucket with dot", func(c *Config) { c.Bucket = "a.b" }, true},
		{"bucket with slash", func(c *Config) { c.Bucket = "a/b" }, true},
		{"unknown storage", func(c *Config) { c.Storage = "disk" }, true},
		{"memory storage", func(c *Config) { c.Storage = "memory" }, false},
		{"negative marker ttl", func(c *Config) { c.LimitMarkerTTL = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{URL: "nats://example:4222", Bucket: "readings", History: 5}.withDefaults()

	assert.Equal(t, uint8(5), cfg.History)
	assert.Equal(t, 1, cfg.Replicas)
	assert.Equal(t, "file", cfg.Storage)
	assert.Equal(t, time.Second, cfg.LimitMarkerTTL)
	assert.Equal(t, 3, cfg.BindAttempts)
}

func TestConfig_KeyValueConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage = "memory"
	cfg.MaxValueSize = 1024

	kv := cfg.keyValueConfig()
	assert.Equal(t, "semlink", kv.Bucket)
	assert.Equal(t, jetstream.MemoryStorage, kv.Storage)
	assert.Equal(t, int32(1024), kv.MaxValueSize)
	assert.Equal(t, time.Second, kv.LimitMarkerTTL)
}

func TestNewDialer_Validates(t *testing.T) {
	_, err := NewDialer(Config{})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	d, err := NewDialer(Config{URL: "nats://localhost:4222", Bucket: "b"})
	assert.NoError(t, err)
	assert.Equal(t, 5, d.cfg.MaxReconnects)
}
