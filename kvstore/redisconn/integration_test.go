package redisconn_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semlink/kvstore"
	"github.com/c360/semlink/kvstore/redisconn"
	"github.com/c360/semlink/testutil"
)

func TestStore_RedisContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	url := testutil.StartRedis(t)
	dialer, err := redisconn.NewDialer(redisconn.Config{URL: url, ClientName: "semlink-test"})
	require.NoError(t, err)

	store, err := kvstore.New(dialer.Factory(), kvstore.DefaultConfig(), kvstore.WithName("redis-it"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Shutdown(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	require.NoError(t, store.Set(ctx, "device:1", map[string]any{"online": true}, time.Minute))
	var got map[string]any
	ok, err := store.Get(ctx, "device:1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, true, got["online"])

	keys, err := store.ScanKeys(ctx, "device:*", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"device:1"}, keys)

	require.NoError(t, store.Remove(ctx, "device:1"))
	has, err := store.Has(ctx, "device:1")
	require.NoError(t, err)
	assert.False(t, has)
	assert.True(t, store.Health().IsHealthy())
}
