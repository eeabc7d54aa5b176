// Package storetest connects repository tests to a real Postgres database.
// Tests are skipped unless TEST_DATABASE_URL is set.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"backoffice/internal/store"
)

// EnvURL names the variable holding the test database connection string.
const EnvURL = "TEST_DATABASE_URL"

// Open connects to TEST_DATABASE_URL and applies the migrations. It returns a
// nil db when the variable is unset.
func Open() (*sql.DB, error) {
	url := os.Getenv(EnvURL)
	if url == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.NewDB(ctx, url, store.PoolOptions{MaxOpen: 5})
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db.Client, zap.NewNop()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate test database: %w", err)
	}
	return db.Client, nil
}

// Run is the body of a package TestMain: it opens the database into *db,
// runs the tests and closes it again.
func Run(m *testing.M, db **sql.DB) int {
	conn, err := Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "storetest: %v\n", err)
		return 1
	}
	*db = conn
	code := m.Run()
	if conn != nil {
		if err := conn.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "storetest: close: %v\n", err)
			return 1
		}
	}
	return code
}

// Require skips t when no test database is configured.
func Require(t testing.TB, db *sql.DB) {
	t.Helper()
	if db == nil {
		t.Skipf("%s not set", EnvURL)
	}
}

// Exec runs statements during test setup or cleanup and fails t on error.
func Exec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
