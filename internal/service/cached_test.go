package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"stocksim/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCache is an in-memory QuoteCache that stores JSON like the Redis cache.
type mapCache struct {
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *mapCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	if c.getErr != nil {
		return false, c.getErr
	}
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *mapCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	c.ttls[key] = ttl
	return nil
}

func TestCachedQuoteProvider_ServesFromCache(t *testing.T) {
	upstream := newFixedQuotes(map[string]string{"AAPL": "187.43"})
	cache := newMapCache()
	p := NewCachedQuoteProvider(upstream, cache, 10*time.Second, quietLogger())
	ctx := context.Background()

	first, err := p.Quote(ctx, "AAPL")
	require.NoError(t, err)
	second, err := p.Quote(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.calls)
	assert.True(t, first.Price.Equal(second.Price))
	assert.Equal(t, 10*time.Second, cache.ttls["quote:AAPL"])
}

func TestCachedQuoteProvider_DoesNotCacheFailures(t *testing.T) {
	upstream := newFixedQuotes(nil)
	cache := newMapCache()
	p := NewCachedQuoteProvider(upstream, cache, time.Minute, quietLogger())

	_, err := p.Quote(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
	assert.Empty(t, cache.data)
}

func TestCachedQuoteProvider_BypassesBrokenCache(t *testing.T) {
	upstream := newFixedQuotes(map[string]string{"AAPL": "187.43"})
	cache := newMapCache()
	cache.getErr = errors.New("connection refused")
	cache.setErr = errors.New("connection refused")
	p := NewCachedQuoteProvider(upstream, cache, time.Minute, quietLogger())

	for i := 0; i < 2; i++ {
		q, err := p.Quote(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.Equal(t, "187.43", q.Price.String())
	}
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedQuoteProvider_RoundTripsQuoteFields(t *testing.T) {
	ts := time.Date(2024, 3, 1, 15, 59, 59, 0, time.UTC)
	upstream := QuoteProviderFunc(func(_ context.Context, s string) (*models.Quote, error) {
		return &models.Quote{Symbol: s, Price: dec("187.43"), Bid: dec("187.40"), Volume: 100, Timestamp: ts, Source: "alpaca"}, nil
	})
	cache := newMapCache()
	p := NewCachedQuoteProvider(upstream, cache, time.Minute, quietLogger())
	ctx := context.Background()

	_, err := p.Quote(ctx, "AAPL")
	require.NoError(t, err)
	got, err := p.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, got.Bid.Equal(dec("187.40")))
	assert.Equal(t, uint64(100), got.Volume)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.Equal(t, "alpaca", got.Source)
}
