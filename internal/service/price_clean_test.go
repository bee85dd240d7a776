package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"stocksim/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSim(t *testing.T) (*SimPriceService, *database.Repo, *time.Time) {
	t.Helper()
	repo := database.NewTestRepo(t)
	sim := NewSimPriceService(repo, quietLogger(), 15*time.Minute, "USD")
	sim.rnd = rand.New(rand.NewSource(42))
	now := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	sim.now = func() time.Time { return now }
	return sim, repo, &now
}

func TestSimPriceService_FirstQuoteIsPersisted(t *testing.T) {
	sim, repo, now := newTestSim(t)
	ctx := context.Background()

	q, err := sim.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "sim", q.Source)
	assert.Equal(t, "USD", q.Currency)
	assert.True(t, q.Price.GreaterThanOrEqual(dec("50")), "initial price %s", q.Price)
	assert.True(t, q.Price.LessThan(dec("5000")), "initial price %s", q.Price)
	assert.True(t, q.Price.Equal(q.Price.Round(2)), "price %s has more than two decimals", q.Price)

	stored, ts, err := repo.GetLatestPrice(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, stored.Equal(q.Price))
	assert.Equal(t, now.UnixMilli(), ts.UnixMilli())
}

func TestSimPriceService_FreshPriceIsStable(t *testing.T) {
	sim, _, now := newTestSim(t)
	ctx := context.Background()

	first, err := sim.Quote(ctx, "AAPL")
	require.NoError(t, err)
	*now = now.Add(10 * time.Minute)
	second, err := sim.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, first.Price.Equal(second.Price))
}

func TestSimPriceService_StalePriceWalks(t *testing.T) {
	sim, repo, now := newTestSim(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertPrice(ctx, "MSFT", dec("100.00"), now.Add(-time.Hour)))

	q, err := sim.Quote(ctx, "MSFT")
	require.NoError(t, err)
	assert.True(t, q.Price.GreaterThanOrEqual(dec("98.00")), "stepped price %s", q.Price)
	assert.True(t, q.Price.LessThanOrEqual(dec("102.00")), "stepped price %s", q.Price)

	stored, _, err := repo.GetLatestPrice(ctx, "MSFT")
	require.NoError(t, err)
	assert.True(t, stored.Equal(q.Price))
}

func TestSimPriceService_PriceFloor(t *testing.T) {
	sim, _, _ := newTestSim(t)
	for i := 0; i < 100; i++ {
		assert.True(t, sim.next(dec("0.01")).GreaterThanOrEqual(minSimPrice))
	}
}

func TestSimPriceService_RefreshRepricesKnownSymbols(t *testing.T) {
	sim, repo, now := newTestSim(t)
	ctx := context.Background()
	old := now.Add(-2 * time.Hour)
	require.NoError(t, repo.UpsertPrice(ctx, "AAPL", dec("180.00"), old))
	require.NoError(t, repo.UpsertPrice(ctx, "TSLA", dec("240.00"), old))

	sim.refresh(ctx)

	for _, s := range []string{"AAPL", "TSLA"} {
		_, ts, err := repo.GetLatestPrice(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, now.UnixMilli(), ts.UnixMilli(), s)
	}
}
