package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"stocksim/internal/database"
	"stocksim/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxSymbolLen = 16

// Ledger is the store the trade engine reads and mutates.
type Ledger interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetHolding(ctx context.Context, userID int64, symbol string) (*models.Holding, error)
	InTx(ctx context.Context, fn func(tx database.LedgerTx) error) error
}

type TradeOptions struct {
	QuoteTimeout time.Duration
	MaxRetries   int
	Currency     string
}

// TradeEngine executes market buys and sells against the ledger at the price
// reported by the quote provider.
type TradeEngine struct {
	ledger Ledger
	quotes QuoteProvider
	log    *logrus.Logger
	opts   TradeOptions
}

func NewTradeEngine(ledger Ledger, quotes QuoteProvider, log *logrus.Logger, opts TradeOptions) *TradeEngine {
	if opts.QuoteTimeout <= 0 {
		opts.QuoteTimeout = 5 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	return &TradeEngine{ledger: ledger, quotes: quotes, log: log, opts: opts}
}

type BuyResult struct {
	Symbol           string
	Quantity         int64
	Price            decimal.Decimal
	Cost             decimal.Decimal
	RemainingBalance decimal.Decimal
}

type SellResult struct {
	Symbol           string
	Quantity         int64
	Price            decimal.Decimal
	Proceeds         decimal.Decimal
	RemainingBalance decimal.Decimal
}

// NormalizeSymbol trims and upper-cases a ticker and rejects empty, overlong
// or whitespace-containing input.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" || len(s) > maxSymbolLen || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return s, nil
}

// WholeShares converts a requested quantity to a share count. Only positive
// whole numbers of shares are tradable.
func WholeShares(quantity decimal.Decimal) (int64, error) {
	if !quantity.IsPositive() {
		return 0, fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidQuantity, quantity)
	}
	if !quantity.IsInteger() {
		return 0, fmt.Errorf("%w: fractional shares are not supported, got %s", ErrInvalidQuantity, quantity)
	}
	if !quantity.LessThanOrEqual(decimal.NewFromInt(1 << 53)) {
		return 0, fmt.Errorf("%w: quantity too large", ErrInvalidQuantity)
	}
	return quantity.IntPart(), nil
}

// Quote returns the current quote for symbol, bounded by the quote timeout.
// A timeout or missing data yields ErrQuoteUnavailable and a cancelled ctx
// yields its error; any other provider error yields ErrProviderFailure.
func (e *TradeEngine) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	qctx, cancel := context.WithTimeout(ctx, e.opts.QuoteTimeout)
	defer cancel()

	q, err := e.quotes.Quote(qctx, sym)
	switch {
	case err == nil && q != nil && q.Price.IsPositive():
		return q, nil
	case err == nil:
		return nil, fmt.Errorf("%w: no current price for %s", ErrQuoteUnavailable, sym)
	case errors.Is(err, ErrQuoteUnavailable):
		return nil, err
	case errors.Is(err, context.DeadlineExceeded):
		e.log.WithFields(logrus.Fields{"symbol": sym, "timeout": e.opts.QuoteTimeout.String()}).Warn("quote timed out")
		return nil, fmt.Errorf("%w: quote for %s timed out", ErrQuoteUnavailable, sym)
	case errors.Is(err, context.Canceled):
		// The caller went away; the provider is not at fault.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	default:
		e.log.WithFields(logrus.Fields{"symbol": sym, "error": err.Error()}).Error("quote provider failed")
		return nil, ErrProviderFailure
	}
}

// Buy purchases quantity shares of symbol for the user at the current price.
func (e *TradeEngine) Buy(ctx context.Context, userID int64, symbol string, quantity decimal.Decimal) (*BuyResult, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	qty, err := WholeShares(quantity)
	if err != nil {
		return nil, err
	}
	if _, err := e.ledger.GetUser(ctx, userID); err != nil {
		return nil, ledgerErr(err, userID, sym)
	}
	q, err := e.Quote(ctx, sym)
	if err != nil {
		return nil, err
	}
	cost := q.Price.Mul(decimal.NewFromInt(qty))

	var res *BuyResult
	err = e.inTx(ctx, func(tx database.LedgerTx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return ledgerErr(err, userID, sym)
		}
		if u.CashBalance.LessThan(cost) {
			return &InsufficientFundsError{Required: cost, Available: u.CashBalance, Currency: e.opts.Currency}
		}
		remaining := u.CashBalance.Sub(cost)
		if err := tx.SetBalance(ctx, userID, remaining, u.Version); err != nil {
			return err
		}
		if err := tx.AddHolding(ctx, userID, sym, qty); err != nil {
			return err
		}
		res = &BuyResult{Symbol: sym, Quantity: qty, Price: q.Price, Cost: cost, RemainingBalance: remaining}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"symbol":    sym,
		"quantity":  qty,
		"price":     q.Price.String(),
		"cost":      cost.String(),
		"remaining": res.RemainingBalance.String(),
	}).Info("buy executed")
	return res, nil
}

// Sell sells quantity shares of symbol from the user's holding at the current
// price. A holding sold down to zero is removed.
func (e *TradeEngine) Sell(ctx context.Context, userID int64, symbol string, quantity decimal.Decimal) (*SellResult, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	qty, err := WholeShares(quantity)
	if err != nil {
		return nil, err
	}
	if _, err := e.ledger.GetUser(ctx, userID); err != nil {
		return nil, ledgerErr(err, userID, sym)
	}
	h, err := e.ledger.GetHolding(ctx, userID, sym)
	if err != nil {
		return nil, ledgerErr(err, userID, sym)
	}
	if h.Quantity < qty {
		return nil, &InsufficientHoldingsError{Symbol: sym, Held: h.Quantity, Requested: qty}
	}
	q, err := e.Quote(ctx, sym)
	if err != nil {
		return nil, err
	}
	proceeds := q.Price.Mul(decimal.NewFromInt(qty))

	var res *SellResult
	err = e.inTx(ctx, func(tx database.LedgerTx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return ledgerErr(err, userID, sym)
		}
		h, err := tx.GetHolding(ctx, userID, sym)
		if err != nil {
			return ledgerErr(err, userID, sym)
		}
		if h.Quantity < qty {
			return &InsufficientHoldingsError{Symbol: sym, Held: h.Quantity, Requested: qty}
		}
		remaining := u.CashBalance.Add(proceeds)
		if err := tx.SetBalance(ctx, userID, remaining, u.Version); err != nil {
			return err
		}
		if err := tx.SetHoldingQuantity(ctx, userID, sym, h.Quantity, h.Quantity-qty); err != nil {
			return err
		}
		res = &SellResult{Symbol: sym, Quantity: qty, Price: q.Price, Proceeds: proceeds, RemainingBalance: remaining}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"symbol":    sym,
		"quantity":  qty,
		"price":     q.Price.String(),
		"proceeds":  proceeds.String(),
		"remaining": res.RemainingBalance.String(),
	}).Info("sell executed")
	return res, nil
}

// inTx runs fn in a ledger transaction, retrying when a compare-and-swap lost
// to a concurrent trade.
func (e *TradeEngine) inTx(ctx context.Context, fn func(tx database.LedgerTx) error) error {
	for attempt := 1; attempt <= e.opts.MaxRetries; attempt++ {
		err := e.ledger.InTx(ctx, fn)
		if !errors.Is(err, database.ErrStaleWrite) {
			return err
		}
		e.log.WithField("attempt", attempt).Debug("trade lost a concurrent update, retrying")
	}
	return ErrTradeConflict
}

func ledgerErr(err error, userID int64, symbol string) error {
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		return fmt.Errorf("%w: user %d", ErrUserNotFound, userID)
	case errors.Is(err, database.ErrHoldingNotFound):
		return &NoSuchHoldingError{Symbol: symbol}
	}
	return err
}
