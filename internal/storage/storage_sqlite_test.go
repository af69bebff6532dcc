package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/heartflow/internal/heart"
)

func openSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memories.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreTests(t, openSQLiteStore)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memories.db")

	s1, err := NewSQLiteStore(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s1.SaveMemory(ctx, heart.Memory{ID: "m1", Content: "durable", Importance: 0.7, Source: "promotion"}))
	require.NoError(t, s1.Close())

	// Reopening runs the migration again; it must be idempotent.
	s2, err := NewSQLiteStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "durable", got.Content)
	assert.Equal(t, 0.7, got.Importance)
	assert.Equal(t, "promotion", got.Source)
}

func TestSQLiteStoreNullableColumns(t *testing.T) {
	ctx := context.Background()
	s := openSQLiteStore(t)

	// No source, never accessed: both columns are NULL.
	require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "m1", Content: "bare"}))

	got, err := s.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, got.Source)
	assert.True(t, got.LastAccessedAt.IsZero())
}

func TestSQLiteStoreCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "memories.db")
	s, err := NewSQLiteStore(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestIsSQLiteBusy(t *testing.T) {
	assert.False(t, isSQLiteBusy(nil))
	assert.False(t, isSQLiteBusy(errors.New("no such table: memories")))
	assert.True(t, isSQLiteBusy(errors.New("database is locked")))
	assert.True(t, isSQLiteBusy(errors.New("SQLITE_BUSY: cannot start a transaction")))
	assert.True(t, isSQLiteBusy(errors.New("SQLITE_LOCKED")))
}
