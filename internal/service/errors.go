package service

import (
	"errors"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Trade errors. The handler layer maps these to HTTP status codes.
var (
	ErrInvalidSymbol        = errors.New("invalid stock symbol")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrUserNotFound         = errors.New("user does not exist")
	ErrQuoteUnavailable     = errors.New("quote unavailable")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNoSuchHolding        = errors.New("no such holding")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrProviderFailure      = errors.New("failed to fetch stock data")
	ErrTradeConflict        = errors.New("trade conflicted with a concurrent update")
)

// InsufficientFundsError is returned by Buy when the cost exceeds the cash
// balance. It matches ErrInsufficientFunds.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
	Currency  string
}

func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("Insufficient funds. You need %s, but have %s",
		FormatMoney(e.Required, e.Currency), FormatMoney(e.Available, e.Currency))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// NoSuchHoldingError is returned by Sell when the user holds no shares of
// Symbol. It matches ErrNoSuchHolding.
type NoSuchHoldingError struct {
	Symbol string
}

func (e *NoSuchHoldingError) Error() string {
	return fmt.Sprintf("User does not own any shares of %s", e.Symbol)
}

func (e *NoSuchHoldingError) Is(target error) bool {
	return target == ErrNoSuchHolding
}

// InsufficientHoldingsError is returned by Sell when more shares are
// requested than held. It matches ErrInsufficientHoldings.
type InsufficientHoldingsError struct {
	Symbol    string
	Held      int64
	Requested int64
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("Insufficient stock quantity. You have %d shares of %s, but tried to sell %d",
		e.Held, e.Symbol, e.Requested)
}

func (e *InsufficientHoldingsError) Is(target error) bool {
	return target == ErrInsufficientHoldings
}

// FormatMoney renders d in currency's display format, e.g. $1,500.00. Unknown
// currencies fall back to the plain decimal followed by the code.
func FormatMoney(d decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return d.StringFixed(2) + " " + currency
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}
