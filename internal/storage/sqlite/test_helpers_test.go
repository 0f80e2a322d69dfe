package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recstore/internal/storage"
)

// createTestStore opens a store on a fresh database file with the schema
// applied.
func createTestStore(t *testing.T, opts storage.Options) *Store {
	t.Helper()
	return openTestStore(t, filepath.Join(t.TempDir(), "test.db"), opts)
}

// openTestStore opens (or reopens) the database at path.
func openTestStore(t *testing.T, path string, opts storage.Options) *Store {
	t.Helper()
	s, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}
