package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/heartflow/internal/heart"
)

// runStoreTests exercises the Store surface shared by every backend.
// open must hand back a fresh, empty store and register its cleanup.
func runStoreTests(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("save and get round trip", func(t *testing.T) {
		s := open(t)
		created := time.Now().Add(-time.Hour)
		m := heart.Memory{
			ID:               "m1",
			Content:          "user: remember I like green tea",
			Importance:       0.8,
			Confidence:       0.9,
			EmotionalValence: 0.4,
			CreatedAt:        created,
			Source:           "promotion",
		}
		require.NoError(t, s.SaveMemory(ctx, m))

		got, err := s.GetMemory(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, m.Content, got.Content)
		assert.Equal(t, m.Importance, got.Importance)
		assert.Equal(t, m.Confidence, got.Confidence)
		assert.Equal(t, m.EmotionalValence, got.EmotionalValence)
		assert.Equal(t, m.Source, got.Source)
		assert.WithinDuration(t, created, got.CreatedAt, time.Second)
		assert.Zero(t, got.AccessCount)
		assert.True(t, got.LastAccessedAt.IsZero())
	})

	t.Run("save fills missing id and created at", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{Content: "anonymous"}))

		list, err := s.ListMemories(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.NotEmpty(t, list[0].ID)
		assert.WithinDuration(t, time.Now(), list[0].CreatedAt, 5*time.Second)
	})

	t.Run("get unknown id", func(t *testing.T) {
		s := open(t)
		_, err := s.GetMemory(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save with same id replaces", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "m1", Content: "first"}))
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "m1", Content: "second"}))

		got, err := s.GetMemory(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "second", got.Content)

		list, err := s.ListMemories(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("list returns every memory", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "a", Content: "one"}))
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "b", Content: "two"}))
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "c", Content: "three"}))

		list, err := s.ListMemories(ctx)
		require.NoError(t, err)
		ids := make([]string, len(list))
		for i, m := range list {
			ids[i] = m.ID
		}
		assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("touch bumps access tracking", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "m1", Content: "x"}))

		require.NoError(t, s.Touch(ctx, "m1"))
		require.NoError(t, s.Touch(ctx, "m1"))

		got, err := s.GetMemory(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.AccessCount)
		assert.WithinDuration(t, time.Now(), got.LastAccessedAt, 5*time.Second)
		assert.Zero(t, got.ReinforcementCount)

		assert.ErrorIs(t, s.Touch(ctx, "nope"), ErrNotFound)
	})

	t.Run("reinforce counts as an access too", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "m1", Content: "x"}))

		require.NoError(t, s.Reinforce(ctx, "m1"))

		got, err := s.GetMemory(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.ReinforcementCount)
		assert.Equal(t, 1, got.AccessCount)

		assert.ErrorIs(t, s.Reinforce(ctx, "nope"), ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "m1", Content: "x"}))

		require.NoError(t, s.DeleteMemory(ctx, "m1"))
		_, err := s.GetMemory(ctx, "m1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteMemory(ctx, "m1"), ErrNotFound)
	})

	t.Run("stats", func(t *testing.T) {
		s := open(t)

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalMemories)

		old := time.Now().Add(-2 * time.Hour)
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "a", Content: "x", Importance: 0.8, CreatedAt: old}))
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "b", Content: "y", Importance: 0.4}))

		stats, err = s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalMemories)
		assert.InDelta(t, 0.6, stats.AvgImportance, 1e-9)
		assert.WithinDuration(t, old, stats.OldestAt, time.Second)
		assert.WithinDuration(t, time.Now(), stats.NewestAt, 5*time.Second)
	})

	t.Run("cleanup drops only stale memories", func(t *testing.T) {
		s := open(t)
		stale := time.Now().Add(-2 * time.Hour)
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "stale", Content: "x", CreatedAt: stale}))
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "touched", Content: "y", CreatedAt: stale}))
		require.NoError(t, s.SaveMemory(ctx, heart.Memory{ID: "fresh", Content: "z"}))

		// A recent access keeps an old memory alive.
		require.NoError(t, s.Touch(ctx, "touched"))

		removed, err := s.CleanupOlderThan(ctx, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		list, err := s.ListMemories(ctx)
		require.NoError(t, err)
		ids := make([]string, len(list))
		for i, m := range list {
			ids[i] = m.ID
		}
		assert.ElementsMatch(t, []string{"touched", "fresh"}, ids)
	})
}
