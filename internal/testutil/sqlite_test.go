package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountRows(t *testing.T) {
	path := DBPath(t)
	db := OpenReader(t, path)

	_, err := db.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO items DEFAULT VALUES; INSERT INTO items DEFAULT VALUES;")
	require.NoError(t, err)

	assert.Equal(t, 2, CountRows(t, db, "items"))
}

func TestHoldWriteLock_BlocksOtherWriters(t *testing.T) {
	path := DBPath(t)
	setup := OpenReader(t, path)
	_, err := setup.Exec("PRAGMA journal_mode = WAL; CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	release := HoldWriteLock(t, path)

	other, err := sql.Open("sqlite3", path+"?_busy_timeout=50")
	require.NoError(t, err)
	defer other.Close()
	other.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = other.ExecContext(ctx, "INSERT INTO items DEFAULT VALUES")
	require.Error(t, err, "write should fail while the lock is held")

	release()

	_, err = other.ExecContext(ctx, "INSERT INTO items DEFAULT VALUES")
	require.NoError(t, err, "write should succeed after release")
}
