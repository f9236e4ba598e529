package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, admins ...string) *sql.DB {
	t.Helper()
	conn, err := InitDB(context.Background(), filepath.Join(t.TempDir(), "data", "tracker.db"), admins)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestInitDBCreatesSchema(t *testing.T) {
	conn := newTestDB(t)

	for _, table := range []string{"users", "competencies", "progress", "admins", "password_reset_tokens"} {
		var name string
		err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
	assert.Same(t, conn, DB)
}

func TestMigrateIsRepeatable(t *testing.T) {
	conn := newTestDB(t)
	require.NoError(t, Migrate(context.Background(), conn))
}

func TestSeedAdmins(t *testing.T) {
	conn := newTestDB(t, " Boss@Example.com", "")
	ctx := context.Background()

	_, err := conn.Exec("INSERT INTO admins (email, builtin) VALUES ('helper@example.com', 0)")
	require.NoError(t, err)

	require.NoError(t, SeedAdmins(ctx, conn, []string{"boss@example.com", "helper@example.com"}))

	rows, err := conn.Query("SELECT email, builtin FROM admins ORDER BY email")
	require.NoError(t, err)
	defer rows.Close()

	got := map[string]bool{}
	for rows.Next() {
		var email string
		var builtin bool
		require.NoError(t, rows.Scan(&email, &builtin))
		got[email] = builtin
	}
	assert.Equal(t, map[string]bool{"boss@example.com": true, "helper@example.com": true}, got)
}

func TestWithTx(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()

	errBoom := errors.New("boom")
	err := WithTx(ctx, conn, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO admins (email) VALUES ('a@x.com')"); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	var n int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM admins").Scan(&n))
	assert.Equal(t, 0, n, "rolled back insert must not be visible")

	err = WithTx(ctx, conn, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO admins (email) VALUES ('a@x.com')")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM admins").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestIsUniqueViolation(t *testing.T) {
	conn := newTestDB(t)

	_, err := conn.Exec("INSERT INTO admins (email) VALUES ('dup@x.com')")
	require.NoError(t, err)
	_, err = conn.Exec("INSERT INTO admins (email) VALUES ('dup@x.com')")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}

func TestNullableHelpers(t *testing.T) {
	assert.Nil(t, TimePtr(sql.NullTime{}))
	assert.Nil(t, IntPtr(sql.NullInt64{}))

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, now, *TimePtr(NullTime(&now)))

	three := 3
	assert.Equal(t, 3, *IntPtr(NullInt(&three)))
	assert.False(t, NullInt(nil).Valid)
}

func TestDatetimeRoundTrip(t *testing.T) {
	conn := newTestDB(t)
	when := time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

	_, err := conn.Exec("INSERT INTO progress (id, apprenticeEmail, competencyId, viewedDate) VALUES ('a_b', 'a', 'b', ?)", when)
	require.NoError(t, err)

	var viewed, handoff sql.NullTime
	require.NoError(t, conn.QueryRow("SELECT viewedDate, handoffDate FROM progress WHERE id='a_b'").Scan(&viewed, &handoff))
	assert.True(t, viewed.Time.Equal(when))
	assert.False(t, handoff.Valid)
}
