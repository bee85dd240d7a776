package service

import (
	"context"

	"stocksim/internal/models"
)

// QuoteProvider returns the current quote for a symbol. Implementations wrap
// ErrQuoteUnavailable when they have no data for the symbol; any other error
// is treated as a provider failure.
type QuoteProvider interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
}

// QuoteProviderFunc adapts a function to QuoteProvider.
type QuoteProviderFunc func(ctx context.Context, symbol string) (*models.Quote, error)

func (f QuoteProviderFunc) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	return f(ctx, symbol)
}
