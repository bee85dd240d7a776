package service

import (
	"context"
	"fmt"

	"stocksim/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var _ QuoteProvider = (*AlpacaQuoteProvider)(nil)

type snapshotClient interface {
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
}

// AlpacaQuoteProvider serves quotes from the Alpaca market-data snapshot
// endpoint. The latest trade price is the current price.
type AlpacaQuoteProvider struct {
	client snapshotClient
	log    *logrus.Logger
}

// NewAlpacaQuoteProvider creates a provider with the given credentials. An
// empty dataURL uses Alpaca's default endpoint.
func NewAlpacaQuoteProvider(apiKey, apiSecret, dataURL string, log *logrus.Logger) *AlpacaQuoteProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaQuoteProvider{client: marketdata.NewClient(opts), log: log}
}

type snapshotResult struct {
	snap *marketdata.Snapshot
	err  error
}

// Quote fetches a snapshot. The client call has no context, so it runs in its
// own goroutine and Quote returns as soon as ctx is done.
func (p *AlpacaQuoteProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	ch := make(chan snapshotResult, 1)
	go func() {
		snap, err := p.client.GetSnapshot(symbol, marketdata.GetSnapshotRequest{})
		ch <- snapshotResult{snap: snap, err: err}
	}()

	var res snapshotResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.err != nil {
		return nil, fmt.Errorf("alpaca snapshot %s: %w", symbol, res.err)
	}
	snap := res.snap
	if snap == nil || snap.LatestTrade == nil || snap.LatestTrade.Price <= 0 {
		return nil, fmt.Errorf("%w: alpaca has no trades for %s", ErrQuoteUnavailable, symbol)
	}

	q := &models.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(snap.LatestTrade.Price),
		Currency:  "USD",
		Timestamp: snap.LatestTrade.Timestamp,
		Source:    "alpaca",
	}
	if lq := snap.LatestQuote; lq != nil {
		q.Bid = decimal.NewFromFloat(lq.BidPrice)
		q.Ask = decimal.NewFromFloat(lq.AskPrice)
	}
	if bar := snap.DailyBar; bar != nil {
		q.Open = decimal.NewFromFloat(bar.Open)
		q.DayHigh = decimal.NewFromFloat(bar.High)
		q.DayLow = decimal.NewFromFloat(bar.Low)
		q.Volume = bar.Volume
	}
	if prev := snap.PrevDailyBar; prev != nil {
		q.PreviousClose = decimal.NewFromFloat(prev.Close)
	}
	return q, nil
}
