// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"orgadmin/internal/database"
	"orgadmin/internal/logging"
)

// OpenDB returns a migrated SQLite database in a temp dir with the service's
// callbacks installed. The pool holds one connection, so code under test
// must not query outside an open transaction while it is running.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "orgadmin.db") + "?_busy_timeout=5000"
	db, err := database.Open(sqlite.Open(dsn), logging.Discard())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}
