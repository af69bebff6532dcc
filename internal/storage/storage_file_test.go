package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/keshon/heartflow/internal/heart"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openFileStore(t *testing.T) Store {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "memories.json"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFileStore(t *testing.T) {
	runStoreTests(t, openFileStore)
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memories.json")

	s1, err := NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s1.SaveMemory(ctx, heart.Memory{ID: "m1", Content: "durable", Importance: 0.7}))
	require.NoError(t, s1.Close())

	s2, err := NewFileStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "durable", got.Content)
	assert.Equal(t, 0.7, got.Importance)
}

func TestFileStoreClosed(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "memories.json"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is safe")

	assert.ErrorIs(t, s.SaveMemory(ctx, heart.Memory{Content: "x"}), ErrClosed)
	_, err = s.GetMemory(ctx, "m1")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.ListMemories(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.DeleteMemory(ctx, "m1"), ErrClosed)
}

func TestFileStoreCancelledContext(t *testing.T) {
	s := openFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.SaveMemory(ctx, heart.Memory{Content: "x"}), context.Canceled)
	_, err := s.GetMemory(ctx, "m1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStoreSkipsUndecodableRecords(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "memories.json"), zerolog.Nop())
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, fs.SaveMemory(ctx, heart.Memory{ID: "good", Content: "x"}))
	// A foreign record under the memory prefix must not break listing.
	fs.ds.Add(memoryKeyPrefix+"bad", "not a memory record")

	list, err := fs.ListMemories(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].ID)
}

func TestFileStoreIgnoresForeignKeys(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "memories.json"), zerolog.Nop())
	require.NoError(t, err)
	defer fs.Close()

	// The snapshot key shares the datastore in production setups.
	fs.ds.Add("agent_state", map[string]any{"impulse": 0.4})
	require.NoError(t, fs.SaveMemory(ctx, heart.Memory{ID: "m1", Content: "x"}))

	list, err := fs.ListMemories(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	stats, err := fs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalMemories)
}
