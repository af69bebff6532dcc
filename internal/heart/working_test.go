package heart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory LongTermStore for promotion tests.
type memStore struct {
	mu    sync.Mutex
	saved []Memory
	err   error
}

func (s *memStore) SaveMemory(_ context.Context, m Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, m)
	return nil
}

func (s *memStore) all() []Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Memory, len(s.saved))
	copy(out, s.saved)
	return out
}

func testWorkingMemory(t *testing.T, cfg WorkingMemoryConfig) (*WorkingMemory, *memStore) {
	t.Helper()
	store := &memStore{}
	wm, err := NewWorkingMemory(cfg, store, zerolog.Nop())
	require.NoError(t, err)
	return wm, store
}

func TestWorkingMemoryConfigValidation(t *testing.T) {
	base := DefaultWorkingMemoryConfig()

	bad := base
	bad.Capacity = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = base
	bad.PromoteThreshold = 1.2
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = base
	bad.Retention = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	assert.NoError(t, base.Validate())

	_, err := NewWorkingMemory(base, nil, zerolog.Nop())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestAddTurnEvictsOldestBeyondCapacity(t *testing.T) {
	cfg := DefaultWorkingMemoryConfig()
	cfg.Capacity = 3
	wm, _ := testWorkingMemory(t, cfg)

	for i := 1; i <= 5; i++ {
		err := wm.AddTurn(context.Background(), ConversationTurn{
			ID:       fmt.Sprintf("t%d", i),
			UserText: fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
	}

	turns := wm.RecentTurns(10)
	require.Len(t, turns, 3)
	assert.Equal(t, "t3", turns[0].ID)
	assert.Equal(t, "t5", turns[2].ID)

	stats := wm.Statistics()
	assert.Equal(t, 3, stats.Size)
	assert.Equal(t, int64(5), stats.Inserted)
	assert.Equal(t, int64(2), stats.Evicted)
}

func TestAddTurnFillsDefaults(t *testing.T) {
	wm, _ := testWorkingMemory(t, DefaultWorkingMemoryConfig())
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{UserText: "hi"}))

	turn, ok := wm.LastTurn()
	require.True(t, ok)
	assert.NotEmpty(t, turn.ID)
	assert.False(t, turn.CreatedAt.IsZero())
}

func TestPromotionPredicate(t *testing.T) {
	tests := []struct {
		name string
		turn ConversationTurn
		want bool
	}{
		{"below everything", ConversationTurn{Importance: 0.2, EmotionIntensity: 0.3}, false},
		{"importance at threshold", ConversationTurn{Importance: 0.6}, true},
		{"importance above threshold", ConversationTurn{Importance: 0.9}, true},
		{"explicit flag", ConversationTurn{Importance: 0.1, ShouldPromote: true}, true},
		{"strong emotion", ConversationTurn{Importance: 0.1, EmotionIntensity: 0.9}, true},
		{"emotion exactly at bound stays put", ConversationTurn{Importance: 0.1, EmotionIntensity: 0.8}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wm, store := testWorkingMemory(t, DefaultWorkingMemoryConfig())
			require.NoError(t, wm.AddTurn(context.Background(), tc.turn))
			if tc.want {
				require.Len(t, store.all(), 1)
			} else {
				assert.Empty(t, store.all())
			}
		})
	}
}

func TestPromotedMemoryCarriesTurnData(t *testing.T) {
	wm, store := testWorkingMemory(t, DefaultWorkingMemoryConfig())
	turn := ConversationTurn{
		ID:               "turn-1",
		UserText:         "my birthday is in June",
		AgentText:        "noted!",
		Importance:       0.8,
		EmotionIntensity: 0.4,
	}
	require.NoError(t, wm.AddTurn(context.Background(), turn))

	saved := store.all()
	require.Len(t, saved, 1)
	m := saved[0]
	assert.Equal(t, "turn-1", m.ID)
	assert.Contains(t, m.Content, "user: my birthday is in June")
	assert.Contains(t, m.Content, "agent: noted!")
	assert.Equal(t, 0.8, m.Importance)
	assert.Equal(t, 0.4, m.EmotionalValence)
	assert.Equal(t, 0.8, m.Confidence)
	assert.Equal(t, "auto", m.Source)
	assert.False(t, m.LastAccessedAt.IsZero())

	stats := wm.Statistics()
	assert.Equal(t, int64(1), stats.Promoted)
}

func TestPromoteFailureDoesNotRollBackTurn(t *testing.T) {
	wm, store := testWorkingMemory(t, DefaultWorkingMemoryConfig())
	store.err = errors.New("backend down")

	err := wm.AddTurn(context.Background(), ConversationTurn{ID: "t1", UserText: "hi", Importance: 0.9})
	require.NoError(t, err)

	turn, ok := wm.LastTurn()
	require.True(t, ok)
	assert.Equal(t, "t1", turn.ID)

	stats := wm.Statistics()
	assert.Equal(t, int64(1), stats.PromoteFailures)
	assert.Zero(t, stats.Promoted)
}

func TestContextRendersOldestFirst(t *testing.T) {
	wm, _ := testWorkingMemory(t, DefaultWorkingMemoryConfig())
	at := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{UserText: "first", CreatedAt: at}))
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{UserText: "second", AgentText: "reply", CreatedAt: at.Add(time.Minute)}))

	ctx := wm.Context()
	assert.Contains(t, ctx, "[09:30] user: first")
	assert.Contains(t, ctx, "[09:31] user: second")
	assert.Contains(t, ctx, "[09:31] agent: reply")
	assert.Less(t, strings.Index(ctx, "first"), strings.Index(ctx, "second"))
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	wm, _ := testWorkingMemory(t, DefaultWorkingMemoryConfig())
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{UserText: "I love Coffee"}))
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{UserText: "tea instead", AgentText: "more COFFEE then"}))
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{UserText: "unrelated"}))

	assert.Len(t, wm.Search("coffee"), 2)
	assert.Empty(t, wm.Search("juice"))
	assert.Empty(t, wm.Search(""))
}

func TestCleanupExpired(t *testing.T) {
	cfg := DefaultWorkingMemoryConfig()
	cfg.Retention = 10 * time.Minute
	wm, _ := testWorkingMemory(t, cfg)

	now := time.Now()
	wm.clock = func() time.Time { return now }

	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{ID: "old", CreatedAt: now.Add(-20 * time.Minute)}))
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{ID: "fresh", CreatedAt: now.Add(-time.Minute)}))

	removed := wm.CleanupExpired()
	assert.Equal(t, 1, removed)

	turns := wm.RecentTurns(10)
	require.Len(t, turns, 1)
	assert.Equal(t, "fresh", turns[0].ID)
	assert.Equal(t, int64(1), wm.Statistics().Expired)
}

func TestClearWithPromoteAll(t *testing.T) {
	wm, store := testWorkingMemory(t, DefaultWorkingMemoryConfig())
	for i := 0; i < 3; i++ {
		require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{
			ID:       fmt.Sprintf("t%d", i),
			UserText: "low importance",
		}))
	}
	require.Empty(t, store.all())

	require.NoError(t, wm.Clear(context.Background(), true))

	saved := store.all()
	require.Len(t, saved, 3)
	for _, m := range saved {
		assert.Equal(t, "clear", m.Source)
	}
	assert.Zero(t, wm.Statistics().Size)
}

func TestClearWithoutPromote(t *testing.T) {
	wm, store := testWorkingMemory(t, DefaultWorkingMemoryConfig())
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{UserText: "gone"}))

	require.NoError(t, wm.Clear(context.Background(), false))
	assert.Empty(t, store.all())
	assert.Zero(t, wm.Statistics().Size)
}

func TestClearAbortsOnCancelledContext(t *testing.T) {
	wm, _ := testWorkingMemory(t, DefaultWorkingMemoryConfig())
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{UserText: "keep me"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := wm.Clear(ctx, true)
	require.Error(t, err)
	// The buffer survives an aborted clear.
	assert.Equal(t, 1, wm.Statistics().Size)
}

func TestPromoteManually(t *testing.T) {
	wm, store := testWorkingMemory(t, DefaultWorkingMemoryConfig())
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{ID: "t1", UserText: "worth keeping"}))

	require.NoError(t, wm.PromoteManually(context.Background(), "t1", "user asked"))

	saved := store.all()
	require.Len(t, saved, 1)
	assert.Equal(t, "manual", saved[0].Source)
	assert.Equal(t, int64(1), wm.Statistics().ManualPromotions)

	err := wm.PromoteManually(context.Background(), "missing", "whatever")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromoteManuallyPropagatesStoreError(t *testing.T) {
	wm, store := testWorkingMemory(t, DefaultWorkingMemoryConfig())
	require.NoError(t, wm.AddTurn(context.Background(), ConversationTurn{ID: "t1", UserText: "hi"}))

	store.err = errors.New("backend down")
	err := wm.PromoteManually(context.Background(), "t1", "user asked")
	require.Error(t, err)
	assert.Zero(t, wm.Statistics().ManualPromotions)
}
