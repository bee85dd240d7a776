package service

import (
	"context"
	"time"

	"stocksim/internal/models"

	"github.com/sirupsen/logrus"
)

// QuoteCache is the JSON cache used by CachedQuoteProvider.
type QuoteCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CachedQuoteProvider serves quotes from a cache for ttl before asking the
// wrapped provider again. Cache failures are logged and bypassed.
type CachedQuoteProvider struct {
	next  QuoteProvider
	cache QuoteCache
	ttl   time.Duration
	log   *logrus.Logger
}

func NewCachedQuoteProvider(next QuoteProvider, cache QuoteCache, ttl time.Duration, log *logrus.Logger) *CachedQuoteProvider {
	return &CachedQuoteProvider{next: next, cache: cache, ttl: ttl, log: log}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

func (p *CachedQuoteProvider) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	key := quoteKey(symbol)
	var cached models.Quote
	found, err := p.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		p.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("quote cache read failed")
	} else if found {
		return &cached, nil
	}

	q, err := p.next.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := p.cache.SetJSON(ctx, key, q, p.ttl); err != nil {
		p.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("quote cache write failed")
	}
	return q, nil
}
