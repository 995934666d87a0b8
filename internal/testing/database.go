package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teranos/artificer/db"
)

// CreateTestDB creates a migrated SQLite database in the test's temp dir.
// A file is used instead of :memory: so every pooled connection sees the same schema.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t testing.TB) *sql.DB {
	t.Helper()

	testDB, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "artificer.db"), nil)
	require.NoError(t, err, "failed to create test database")

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}
