package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID          int64           `db:"id" json:"id"`
	Username    string          `db:"username" json:"username"`
	CashBalance decimal.Decimal `db:"cash_balance" json:"cash_balance"`
	Version     int64           `db:"version" json:"-"`
}

// Holding is a user's owned quantity of one symbol. Quantity is always > 0.
type Holding struct {
	Symbol   string `db:"symbol" json:"symbol"`
	Quantity int64  `db:"quantity" json:"quantity"`
}

// Quote is a price snapshot for a symbol. Price is the current price used for
// trading; the remaining fields are informational and zero when the provider
// does not report them.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"currentPrice"`
	Currency      string          `json:"currency,omitempty"`
	Bid           decimal.Decimal `json:"bid"`
	Ask           decimal.Decimal `json:"ask"`
	Open          decimal.Decimal `json:"open"`
	DayHigh       decimal.Decimal `json:"dayHigh"`
	DayLow        decimal.Decimal `json:"dayLow"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	Volume        uint64          `json:"volume"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
}
