package database

import (
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrHoldingNotFound = errors.New("holding not found")
	ErrNoPrice         = errors.New("no price recorded")
	// ErrStaleWrite is returned when a compare-and-swap update matched no row
	// because another transaction changed it first.
	ErrStaleWrite = errors.New("stale write")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc.org/sqlite registers as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

type PriceTick struct {
	Symbol     string          `db:"symbol" json:"symbol"`
	Price      decimal.Decimal `db:"price" json:"price"`
	ObservedAt int64           `db:"observed_at" json:"observed_at"` // unix millis
}
