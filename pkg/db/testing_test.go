package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// openTestDB opens a fresh SQLite database in a temp dir.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "minutes.db")))
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	return db
}
