package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/semlink/errors"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 30*time.Second, cfg.MaxReconnectInterval)
	assert.Equal(t, 5*time.Second, cfg.ConnectionTimeout)

	partial := Config{ReconnectInterval: 250 * time.Millisecond}.withDefaults()
	assert.Equal(t, 250*time.Millisecond, partial.ReconnectInterval)
	assert.Equal(t, DefaultMaxReconnectInterval, partial.MaxReconnectInterval)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero", Config{}, false},
		{"negative timeout", Config{ConnectionTimeout: -time.Second}, true},
		{"max below base", Config{ReconnectInterval: time.Minute, MaxReconnectInterval: time.Second}, true},
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
}
