package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// DBPath returns a database path inside a fresh test directory.
func DBPath(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// OpenReader opens an independent connection to the database at path.
//
// Reads through it observe only committed transactions, which is how tests
// check read-after-write visibility without touching the writer's
// connection.
func OpenReader(t testing.TB, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// CountRows returns SELECT COUNT(*) for a table.
func CountRows(t testing.TB, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// HoldWriteLock takes the database write lock from a separate connection
// with BEGIN IMMEDIATE and keeps it until release is called (or the test
// ends). Writers on other connections see SQLITE_BUSY meanwhile.
func HoldWriteLock(t testing.TB, path string) (release func()) {
	t.Helper()
	return HoldWriteLockWith(t, "sqlite3", path)
}

// HoldWriteLockWith is HoldWriteLock through a specific driver. The holder
// must use the same driver as the writer under test: two SQLite builds in
// one process do not see each other's POSIX locks.
func HoldWriteLockWith(t testing.TB, driver, path string) (release func()) {
	t.Helper()
	db, err := sql.Open(driver, path)
	if err != nil {
		t.Fatalf("open lock holder: %v", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		t.Fatalf("lock holder conn: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE TRANSACTION"); err != nil {
		conn.Close()
		db.Close()
		t.Fatalf("lock holder begin: %v", err)
	}

	released := false
	release = func() {
		if released {
			return
		}
		released = true
		conn.ExecContext(ctx, "ROLLBACK")
		conn.Close()
		db.Close()
	}
	t.Cleanup(release)
	return release
}
