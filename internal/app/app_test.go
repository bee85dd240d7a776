package app

import (
	"context"
	"io"
	"testing"

	"stocksim/internal/config"
	"stocksim/internal/service"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SimulatedSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.DatabaseURL = ":memory:"
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := Build(ctx, cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Quotes.(*service.SimPriceService)
	assert.True(t, ok, "sim provider expected without redis, got %T", a.Quotes)

	_, err = a.Repo.InitUser(ctx, cfg.UserID, cfg.Username, cfg.StartingBalanceDecimal())
	require.NoError(t, err)
	res, err := a.Engine.Buy(ctx, cfg.UserID, "AAPL", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, res.RemainingBalance.Equal(cfg.StartingBalanceDecimal().Sub(res.Price)))
}

func TestBuild_UnsupportedDriver(t *testing.T) {
	cfg := config.Default()
	cfg.DBDriver = "mysql"
	_, err := Build(context.Background(), cfg, logrus.New())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	l := NewLogger(cfg)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	_, isJSON := l.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}
