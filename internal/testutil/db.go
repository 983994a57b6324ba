package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/tagsync/internal/infrastructure/sqlite"
)

// NewTestDB opens a SQLite database in a per-test temp dir and closes it on cleanup.
func NewTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "tagsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewTestStore returns an uncached store for a fresh database under scope "test".
func NewTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	return NewTestDB(t).Store("test", sqlite.CacheOptions{})
}
