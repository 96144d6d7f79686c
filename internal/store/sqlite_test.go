package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kiranshivaraju/pdfgate/internal/config"
	"github.com/kiranshivaraju/pdfgate/internal/store"
	"github.com/kiranshivaraju/pdfgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Contract(t *testing.T) {
	runContract(t, newSQLiteStore)
}

func TestSQLiteStore_Ping(t *testing.T) {
	s := newSQLiteStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestSQLiteStore_FilePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "pdfgate.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateAPIKey(ctx, newKey("hash-persisted", models.PlanPro)))
	require.NoError(t, s.Close())

	reopened, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetActiveAPIKeyByHash(ctx, "hash-persisted")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, got.Plan)
}

func TestSQLiteStore_ReopenMigratesCleanly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdfgate.db")
	for i := 0; i < 3; i++ {
		s, err := store.NewSQLiteStore(path)
		require.NoError(t, err)
		require.NoError(t, s.Ping(context.Background()))
		require.NoError(t, s.Close())
	}
}

func TestOpen_SQLite(t *testing.T) {
	s, err := store.Open(context.Background(), config.DatabaseConfig{URL: "sqlite://" + filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.(*store.SQLiteStore)
	assert.True(t, ok)
}

func TestDriver(t *testing.T) {
	assert.Equal(t, store.DriverPostgres, store.Driver("postgres://u:p@localhost/db"))
	assert.Equal(t, store.DriverPostgres, store.Driver("postgresql://localhost/db"))
	assert.Equal(t, store.DriverSQLite, store.Driver("pdf_api.db"))
	assert.Equal(t, store.DriverSQLite, store.Driver("sqlite:///var/lib/pdfgate.db"))
}
