package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *Redis {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set; skipping redis tests")
	}
	c, err := Connect(context.Background(), addr, os.Getenv("REDIS_PASS"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedis_JSONRoundTrip(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()
	key := "stocksim:test:" + t.Name()
	t.Cleanup(func() { c.Delete(ctx, key) })

	type payload struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}

	var got payload
	found, err := c.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetJSON(ctx, key, payload{Symbol: "AAPL", Price: "187.43"}, time.Minute))
	found, err = c.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Symbol: "AAPL", Price: "187.43"}, got)

	require.NoError(t, c.Delete(ctx, key))
	found, err = c.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
