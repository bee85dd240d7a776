package database

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupPostgres connects to POSTGRES_URL, migrates, and wipes ledger tables.
func setupPostgres(t *testing.T) *Repo {
	url := os.Getenv("POSTGRES_URL")
	if url == "" {
		t.Skip("POSTGRES_URL is not set; skipping integration tests")
	}
	db, err := Open(DriverPostgres, url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := New(db, logger)
	require.NoError(t, r.Migrate(context.Background()))
	for _, q := range []string{"DELETE FROM users_stocks", "DELETE FROM users", "DELETE FROM price_history"} {
		_, err := db.Exec(q)
		require.NoError(t, err)
	}
	return r
}

// eachBackend runs fn against SQLite always and Postgres when configured.
func eachBackend(t *testing.T, fn func(t *testing.T, r *Repo)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, NewTestRepo(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, setupPostgres(t)) })
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInitUser_Idempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, r *Repo) {
		ctx := context.Background()

		created, err := r.InitUser(ctx, 1, "alex", dec("1000000.00"))
		require.NoError(t, err)
		assert.True(t, created)

		require.NoError(t, r.InTx(ctx, func(tx LedgerTx) error {
			return tx.SetBalance(ctx, 1, dec("12.34"), 0)
		}))

		created, err = r.InitUser(ctx, 1, "alex", dec("1000000.00"))
		require.NoError(t, err)
		assert.False(t, created)

		bal, err := r.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.True(t, bal.Equal(dec("12.34")), "existing balance must survive init, got %s", bal)
	})
}

func TestInitUser_UsernameTaken(t *testing.T) {
	eachBackend(t, func(t *testing.T, r *Repo) {
		ctx := context.Background()
		_, err := r.InitUser(ctx, 1, "alex", dec("10"))
		require.NoError(t, err)

		_, err = r.InitUser(ctx, 2, "alex", dec("10"))
		assert.Error(t, err)
	})
}

func TestGetBalance_UserNotFound(t *testing.T) {
	eachBackend(t, func(t *testing.T, r *Repo) {
		_, err := r.GetBalance(context.Background(), 42)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})
}

func TestListHoldings(t *testing.T) {
	eachBackend(t, func(t *testing.T, r *Repo) {
		ctx := context.Background()

		_, err := r.ListHoldings(ctx, 1)
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = r.InitUser(ctx, 1, "alex", dec("100"))
		require.NoError(t, err)

		holdings, err := r.ListHoldings(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, holdings)
		assert.NotNil(t, holdings)

		require.NoError(t, r.InTx(ctx, func(tx LedgerTx) error {
			if err := tx.AddHolding(ctx, 1, "MSFT", 3); err != nil {
				return err
			}
			if err := tx.AddHolding(ctx, 1, "AAPL", 10); err != nil {
				return err
			}
			return tx.AddHolding(ctx, 1, "AAPL", 5)
		}))

		holdings, err = r.ListHoldings(ctx, 1)
		require.NoError(t, err)
		require.Len(t, holdings, 2)
		assert.Equal(t, "AAPL", holdings[0].Symbol)
		assert.Equal(t, int64(15), holdings[0].Quantity)
		assert.Equal(t, "MSFT", holdings[1].Symbol)
		assert.Equal(t, int64(3), holdings[1].Quantity)
	})
}

func TestSetBalance_StaleVersion(t *testing.T) {
	eachBackend(t, func(t *testing.T, r *Repo) {
		ctx := context.Background()
		_, err := r.InitUser(ctx, 1, "alex", dec("100"))
		require.NoError(t, err)

		require.NoError(t, r.InTx(ctx, func(tx LedgerTx) error {
			return tx.SetBalance(ctx, 1, dec("90"), 0)
		}))

		err = r.InTx(ctx, func(tx LedgerTx) error {
			return tx.SetBalance(ctx, 1, dec("80"), 0)
		})
		assert.ErrorIs(t, err, ErrStaleWrite)

		u, err := r.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.True(t, u.CashBalance.Equal(dec("90")))
		assert.Equal(t, int64(1), u.Version)
	})
}

func TestSetHoldingQuantity(t *testing.T) {
	eachBackend(t, func(t *testing.T, r *Repo) {
		ctx := context.Background()
		_, err := r.InitUser(ctx, 1, "alex", dec("100"))
		require.NoError(t, err)
		require.NoError(t, r.InTx(ctx, func(tx LedgerTx) error {
			return tx.AddHolding(ctx, 1, "AAPL", 10)
		}))

		require.NoError(t, r.InTx(ctx, func(tx LedgerTx) error {
			return tx.SetHoldingQuantity(ctx, 1, "AAPL", 10, 4)
		}))
		h, err := r.GetHolding(ctx, 1, "AAPL")
		require.NoError(t, err)
		assert.Equal(t, int64(4), h.Quantity)

		err = r.InTx(ctx, func(tx LedgerTx) error {
			return tx.SetHoldingQuantity(ctx, 1, "AAPL", 10, 0)
		})
		assert.ErrorIs(t, err, ErrStaleWrite)

		require.NoError(t, r.InTx(ctx, func(tx LedgerTx) error {
			return tx.SetHoldingQuantity(ctx, 1, "AAPL", 4, 0)
		}))
		_, err = r.GetHolding(ctx, 1, "AAPL")
		assert.ErrorIs(t, err, ErrHoldingNotFound)
	})
}

func TestInTx_RollsBackOnError(t *testing.T) {
	eachBackend(t, func(t *testing.T, r *Repo) {
		ctx := context.Background()
		_, err := r.InitUser(ctx, 1, "alex", dec("100"))
		require.NoError(t, err)

		boom := assert.AnError
		err = r.InTx(ctx, func(tx LedgerTx) error {
			if err := tx.SetBalance(ctx, 1, dec("50"), 0); err != nil {
				return err
			}
			if err := tx.AddHolding(ctx, 1, "AAPL", 1); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		bal, err := r.GetBalance(ctx, 1)
		require.NoError(t, err)
		assert.True(t, bal.Equal(dec("100")))
		_, err = r.GetHolding(ctx, 1, "AAPL")
		assert.ErrorIs(t, err, ErrHoldingNotFound)
	})
}

func TestResetAllUsers(t *testing.T) {
	eachBackend(t, func(t *testing.T, r *Repo) {
		ctx := context.Background()
		_, err := r.InitUser(ctx, 1, "alex", dec("100"))
		require.NoError(t, err)
		require.NoError(t, r.InTx(ctx, func(tx LedgerTx) error {
			return tx.AddHolding(ctx, 1, "AAPL", 1)
		}))

		n, err := r.ResetAllUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = r.GetUser(ctx, 1)
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = r.GetHolding(ctx, 1, "AAPL")
		assert.ErrorIs(t, err, ErrHoldingNotFound)

		n, err = r.ResetAllUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestPriceHistory(t *testing.T) {
	eachBackend(t, func(t *testing.T, r *Repo) {
		ctx := context.Background()

		_, _, err := r.GetLatestPrice(ctx, "AAPL")
		assert.ErrorIs(t, err, ErrNoPrice)

		t0 := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
		require.NoError(t, r.UpsertPrice(ctx, "AAPL", dec("187.4300"), t0))
		require.NoError(t, r.UpsertPrice(ctx, "AAPL", dec("188.1"), t0.Add(time.Minute)))
		require.NoError(t, r.UpsertPrice(ctx, "TSLA", dec("250"), t0))

		p, ts, err := r.GetLatestPrice(ctx, "AAPL")
		require.NoError(t, err)
		assert.True(t, p.Equal(dec("188.1")), "got %s", p)
		assert.True(t, ts.Equal(t0.Add(time.Minute)))

		symbols, err := r.GetAllSymbols(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "TSLA"}, symbols)
	})
}
