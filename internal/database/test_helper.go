package database

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

// NewTestRepo returns a migrated Repo over a private in-memory SQLite
// database that is closed when the test ends.
func NewTestRepo(t testing.TB) *Repo {
	t.Helper()
	db, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	r := New(db, logger)
	if err := r.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return r
}
