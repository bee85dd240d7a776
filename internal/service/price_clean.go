package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"stocksim/internal/database"
	"stocksim/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PriceStore is the price history the simulated provider reads and appends to.
type PriceStore interface {
	GetLatestPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error)
	UpsertPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error
	GetAllSymbols(ctx context.Context) ([]string, error)
}

var minSimPrice = decimal.RequireFromString("0.01")

// SimPriceService is an offline QuoteProvider. Prices follow a random walk
// persisted in price_history, so a symbol keeps a stable price between
// refreshes.
type SimPriceService struct {
	repo      PriceStore
	log       *logrus.Logger
	staleness time.Duration
	currency  string
	now       func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimPriceService(r PriceStore, log *logrus.Logger, staleness time.Duration, currency string) *SimPriceService {
	return &SimPriceService{
		repo:      r,
		log:       log,
		staleness: staleness,
		currency:  currency,
		now:       func() time.Time { return time.Now().UTC() },
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *SimPriceService) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	price, ts, err := p.GetPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &models.Quote{
		Symbol:    symbol,
		Price:     price,
		Currency:  p.currency,
		Timestamp: ts,
		Source:    "sim",
	}, nil
}

// GetPrice returns the latest stored price when it is fresher than the
// staleness window, otherwise steps the walk and stores the new price.
func (p *SimPriceService) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	last, ts, err := p.repo.GetLatestPrice(ctx, symbol)
	switch {
	case err == nil && p.now().Sub(ts) < p.staleness:
		return last, ts, nil
	case err != nil && !errors.Is(err, database.ErrNoPrice):
		return decimal.Zero, time.Time{}, fmt.Errorf("load price for %s: %w", symbol, err)
	}

	val := p.next(last)
	ts = p.now()
	if err := p.repo.UpsertPrice(ctx, symbol, val, ts); err != nil {
		p.log.Warnf("store simulated price for %s: %v", symbol, err)
	}
	return val, ts, nil
}

// next draws an initial price in [50, 5000) when last is zero, otherwise
// moves last by up to ±2%.
func (p *SimPriceService) next(last decimal.Decimal) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last.IsZero() {
		return decimal.NewFromFloat(50 + p.rnd.Float64()*(5000-50)).Round(2)
	}
	step := decimal.NewFromFloat(1 + (p.rnd.Float64()*4-2)/100)
	val := last.Mul(step).Round(2)
	if val.LessThan(minSimPrice) {
		return minSimPrice
	}
	return val
}

// Start re-prices every known symbol on each tick until ctx is cancelled.
func (p *SimPriceService) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.log.Info("price updater stopping")
				return
			case <-ticker.C:
				p.refresh(ctx)
			}
		}
	}()
}

func (p *SimPriceService) refresh(ctx context.Context) {
	symbols, err := p.repo.GetAllSymbols(ctx)
	if err != nil {
		p.log.Warnf("failed to fetch symbols: %v", err)
		return
	}
	for _, s := range symbols {
		last, _, err := p.repo.GetLatestPrice(ctx, s)
		if err != nil {
			p.log.Warnf("failed to load price for %s: %v", s, err)
			continue
		}
		if err := p.repo.UpsertPrice(ctx, s, p.next(last), p.now()); err != nil {
			p.log.Warnf("failed to store price for %s: %v", s, err)
		}
	}
	p.log.Debugf("refreshed %d simulated prices", len(symbols))
}
