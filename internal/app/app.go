// Package app assembles the ledger, quote provider and trade engine from a
// Config. The HTTP server and ledgerctl share it.
package app

import (
	"context"
	"fmt"
	"os"

	"stocksim/internal/cache"
	"stocksim/internal/config"
	"stocksim/internal/database"
	"stocksim/internal/service"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type App struct {
	DB     *sqlx.DB
	Repo   *database.Repo
	Quotes service.QuoteProvider
	Engine *service.TradeEngine

	cache *cache.Redis
}

// NewLogger builds the process logger from the log settings in cfg.
func NewLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// Build opens and migrates the database, picks the quote provider and wires
// the trade engine. The simulated provider's refresher runs until ctx is
// cancelled.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	a := &App{DB: db, Repo: database.New(db, logger)}
	if err := a.Repo.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	switch cfg.QuoteProvider {
	case "alpaca":
		a.Quotes = service.NewAlpacaQuoteProvider(cfg.AlpacaAPIKey, cfg.AlpacaAPISecret, cfg.AlpacaDataURL, logger)
	default:
		sim := service.NewSimPriceService(a.Repo, logger, cfg.PriceStaleness, cfg.Currency)
		sim.Start(ctx, cfg.PriceUpdateInterval)
		a.Quotes = sim
	}
	logger.Infof("quote provider: %s", cfg.QuoteProvider)

	if cfg.RedisAddr != "" {
		rc, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			logger.Warnf("redis unavailable at %s, quotes will not be cached: %v", cfg.RedisAddr, err)
		} else {
			a.cache = rc
			a.Quotes = service.NewCachedQuoteProvider(a.Quotes, rc, cfg.QuoteCacheTTL, logger)
		}
	}

	a.Engine = service.NewTradeEngine(a.Repo, a.Quotes, logger, service.TradeOptions{
		QuoteTimeout: cfg.QuoteTimeout,
		MaxRetries:   cfg.TradeMaxRetries,
		Currency:     cfg.Currency,
	})
	return a, nil
}

func (a *App) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	a.DB.Close()
}
