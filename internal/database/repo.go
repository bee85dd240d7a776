package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"stocksim/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrations embed.FS

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

// Open connects to the ledger database and verifies the connection.
func Open(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if driver == DriverSQLite {
		// SQLite allows one writer; an in-memory database also lives on a
		// single connection.
		db.SetMaxOpenConns(1)
		return db, nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return db, nil
}

// Migrate applies the embedded schema for the connected driver. Statements are
// idempotent so Migrate is safe to run on every start.
func (r *Repo) Migrate(ctx context.Context) error {
	dir := "migrations/" + r.db.DriverName()
	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("no migrations for driver %s: %w", r.db.DriverName(), err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		b, err := migrations.ReadFile(dir + "/" + name)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(b), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := r.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s: %w", name, err)
			}
		}
		r.log.Debugf("applied migration %s", name)
	}
	return nil
}

// InitUser creates the user if it does not exist. It reports whether a row was
// created; an existing user is left untouched.
func (r *Repo) InitUser(ctx context.Context, userID int64, username string, balance decimal.Decimal) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO users (id, username, cash_balance) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`), userID, username, balance)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := r.GetUser(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, fmt.Errorf("username %q is taken by another user", username)
		}
		return false, err
	}
	return false, nil
}

func (r *Repo) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return getUser(ctx, r.db, userID)
}

func (r *Repo) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return u.CashBalance, nil
}

func (r *Repo) GetHolding(ctx context.Context, userID int64, symbol string) (*models.Holding, error) {
	return getHolding(ctx, r.db, userID, symbol)
}

// ListHoldings returns the user's holdings ordered by symbol. A user with no
// holdings gets an empty slice; a missing user gets ErrUserNotFound.
func (r *Repo) ListHoldings(ctx context.Context, userID int64) ([]models.Holding, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	res := []models.Holding{}
	if err := r.db.SelectContext(ctx, &res, r.db.Rebind(`SELECT symbol, quantity FROM users_stocks WHERE user_id = ? ORDER BY symbol`), userID); err != nil {
		return nil, err
	}
	return res, nil
}

// ResetAllUsers deletes every holding and user. It returns the number of users
// removed.
func (r *Repo) ResetAllUsers(ctx context.Context) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM users_stocks`); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users`)
	if err != nil {
		return 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return removed, tx.Commit()
}

// InTx runs fn inside a database transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (r *Repo) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&Tx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Warnf("rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (r *Repo) UpsertPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO price_history (symbol, price, observed_at) VALUES (?, ?, ?)`), symbol, price, ts.UnixMilli())
	return err
}

func (r *Repo) GetLatestPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	var tick PriceTick
	err := r.db.GetContext(ctx, &tick, r.db.Rebind(`SELECT symbol, price, observed_at FROM price_history WHERE symbol = ? ORDER BY observed_at DESC, id DESC LIMIT 1`), symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, time.Time{}, ErrNoPrice
	}
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	return tick.Price, time.UnixMilli(tick.ObservedAt).UTC(), nil
}

// GetAllSymbols returns every symbol with recorded prices.
func (r *Repo) GetAllSymbols(ctx context.Context) ([]string, error) {
	res := []string{}
	if err := r.db.SelectContext(ctx, &res, `SELECT DISTINCT symbol FROM price_history ORDER BY symbol`); err != nil {
		return nil, err
	}
	return res, nil
}

func getUser(ctx context.Context, q sqlx.ExtContext, userID int64) (*models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, q, &u, q.Rebind(`SELECT id, username, cash_balance, version FROM users WHERE id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func getHolding(ctx context.Context, q sqlx.ExtContext, userID int64, symbol string) (*models.Holding, error) {
	var h models.Holding
	err := sqlx.GetContext(ctx, q, &h, q.Rebind(`SELECT symbol, quantity FROM users_stocks WHERE user_id = ? AND symbol = ?`), userID, symbol)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHoldingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}
