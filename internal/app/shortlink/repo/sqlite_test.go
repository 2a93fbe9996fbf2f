package repo_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorturl.local/internal/app/shortlink/repo"
)

func newSQLiteStore(t *testing.T) *repo.SQLiteStore {
	t.Helper()
	s, err := repo.NewSQLiteStore(filepath.Join(t.TempDir(), "shorturl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) backend { return newSQLiteStore(t) })
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shorturl.db")
	ctx := context.Background()

	s, err := repo.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, newLink("abc", "https://example.com/")))
	require.NoError(t, s.Close())

	s, err = repo.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	got, err := s.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", got.URL)
}
