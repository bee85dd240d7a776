package database

import (
	"context"

	"stocksim/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// LedgerTx is the set of ledger operations available inside a transaction.
type LedgerTx interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	GetHolding(ctx context.Context, userID int64, symbol string) (*models.Holding, error)
	// SetBalance writes balance if the user row is still at version and bumps
	// the version. It returns ErrStaleWrite when the row moved on.
	SetBalance(ctx context.Context, userID int64, balance decimal.Decimal, version int64) error
	// AddHolding creates the holding or increments an existing one.
	AddHolding(ctx context.Context, userID int64, symbol string, quantity int64) error
	// SetHoldingQuantity moves a holding from oldQty to newQty, deleting the
	// row when newQty is zero. It returns ErrStaleWrite when the holding no
	// longer has oldQty.
	SetHoldingQuantity(ctx context.Context, userID int64, symbol string, oldQty, newQty int64) error
}

var _ LedgerTx = (*Tx)(nil)

type Tx struct {
	tx *sqlx.Tx
}

func (t *Tx) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return getUser(ctx, t.tx, userID)
}

func (t *Tx) GetHolding(ctx context.Context, userID int64, symbol string) (*models.Holding, error) {
	return getHolding(ctx, t.tx, userID, symbol)
}

func (t *Tx) SetBalance(ctx context.Context, userID int64, balance decimal.Decimal, version int64) error {
	q := `UPDATE users SET cash_balance = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND version = ?`
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(q), balance, userID, version)
	if err != nil {
		return err
	}
	return expectOneRow(res.RowsAffected())
}

func (t *Tx) AddHolding(ctx context.Context, userID int64, symbol string, quantity int64) error {
	q := `INSERT INTO users_stocks (user_id, symbol, quantity) VALUES (?, ?, ?)
		ON CONFLICT (user_id, symbol) DO UPDATE SET quantity = users_stocks.quantity + excluded.quantity, updated_at = CURRENT_TIMESTAMP`
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(q), userID, symbol, quantity)
	return err
}

func (t *Tx) SetHoldingQuantity(ctx context.Context, userID int64, symbol string, oldQty, newQty int64) error {
	if newQty == 0 {
		q := `DELETE FROM users_stocks WHERE user_id = ? AND symbol = ? AND quantity = ?`
		res, err := t.tx.ExecContext(ctx, t.tx.Rebind(q), userID, symbol, oldQty)
		if err != nil {
			return err
		}
		return expectOneRow(res.RowsAffected())
	}
	q := `UPDATE users_stocks SET quantity = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ? AND symbol = ? AND quantity = ?`
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(q), newQty, userID, symbol, oldQty)
	if err != nil {
		return err
	}
	return expectOneRow(res.RowsAffected())
}

func expectOneRow(n int64, err error) error {
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrStaleWrite
	}
	return nil
}
