package heart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/heartflow/pkg/util"
)

// promoteEmotionMin: turns felt this strongly are promoted regardless
// of importance.
const promoteEmotionMin = 0.8

// clearPromoteWorkers bounds the promote-all fan-out during Clear.
const clearPromoteWorkers = 4

// WorkingMemoryConfig bounds the short-term buffer.
type WorkingMemoryConfig struct {
	Capacity         int           `json:"capacity"`
	PromoteThreshold float64       `json:"promote_threshold"` // 0..1
	Retention        time.Duration `json:"retention"`
}

// DefaultWorkingMemoryConfig returns the stock limits.
func DefaultWorkingMemoryConfig() WorkingMemoryConfig {
	return WorkingMemoryConfig{
		Capacity:         10,
		PromoteThreshold: 0.6,
		Retention:        30 * time.Minute,
	}
}

func (c WorkingMemoryConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: working memory capacity %d must be positive", ErrInvalidConfig, c.Capacity)
	}
	if c.PromoteThreshold < 0 || c.PromoteThreshold > 1 {
		return fmt.Errorf("%w: promote threshold %g outside [0,1]", ErrInvalidConfig, c.PromoteThreshold)
	}
	if c.Retention <= 0 {
		return fmt.Errorf("%w: retention %s must be positive", ErrInvalidConfig, c.Retention)
	}
	return nil
}

// MemoryStats counts working-memory traffic since construction.
type MemoryStats struct {
	Size             int   `json:"size"`
	Capacity         int   `json:"capacity"`
	Inserted         int64 `json:"inserted"`
	Evicted          int64 `json:"evicted"`
	Promoted         int64 `json:"promoted"`
	PromoteFailures  int64 `json:"promote_failures"`
	Expired          int64 `json:"expired"`
	ManualPromotions int64 `json:"manual_promotions"`
}

// WorkingMemory is a bounded FIFO of recent conversation turns with a
// promotion policy into the injected long-term store. One mutex guards
// the buffer and counters; store I/O happens outside it so a slow
// backend cannot stall readers.
type WorkingMemory struct {
	mu    sync.Mutex
	cfg   WorkingMemoryConfig
	turns []ConversationTurn
	stats MemoryStats

	store LongTermStore
	clock func() time.Time
	log   zerolog.Logger
}

func NewWorkingMemory(cfg WorkingMemoryConfig, store LongTermStore, log zerolog.Logger) (*WorkingMemory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: long-term store is required", ErrInvalidConfig)
	}
	return &WorkingMemory{
		cfg:   cfg,
		turns: make([]ConversationTurn, 0, cfg.Capacity),
		store: store,
		clock: time.Now,
		log:   log,
	}, nil
}

// AddTurn buffers a turn, evicting the oldest beyond capacity, then
// promotes it when the policy matches. A failed promotion is logged and
// counted but never rolls the insert back.
func (m *WorkingMemory) AddTurn(ctx context.Context, turn ConversationTurn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = m.clock()
	}
	turn.Importance = clamp01(turn.Importance)
	turn.EmotionIntensity = clamp01(turn.EmotionIntensity)

	m.mu.Lock()
	m.turns = append(m.turns, turn)
	if n := len(m.turns); n > m.cfg.Capacity {
		m.stats.Evicted += int64(n - m.cfg.Capacity)
		m.turns = m.turns[n-m.cfg.Capacity:]
	}
	m.stats.Inserted++
	promote := m.shouldPromote(turn)
	m.mu.Unlock()

	if promote {
		// The turn stays buffered whether or not this succeeds.
		m.promote(ctx, turn, "auto")
	}
	return nil
}

// shouldPromote is the promotion predicate. Callers hold the mutex.
func (m *WorkingMemory) shouldPromote(t ConversationTurn) bool {
	return t.Importance >= m.cfg.PromoteThreshold ||
		t.ShouldPromote ||
		t.EmotionIntensity > promoteEmotionMin
}

// promote converts the turn to a Memory and hands it to the store.
// Called without the mutex held.
func (m *WorkingMemory) promote(ctx context.Context, turn ConversationTurn, source string) error {
	err := m.store.SaveMemory(ctx, turnToMemory(turn, source, m.clock()))

	m.mu.Lock()
	if err != nil {
		m.stats.PromoteFailures++
	} else {
		m.stats.Promoted++
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Warn().Err(err).Str("turn", turn.ID).Str("source", source).Msg("promotion to long-term store failed")
		return err
	}
	m.log.Debug().Str("turn", turn.ID).Str("source", source).Msg("turn promoted to long-term store")
	return nil
}

func turnToMemory(t ConversationTurn, source string, now time.Time) Memory {
	var b strings.Builder
	b.WriteString("user: ")
	b.WriteString(t.UserText)
	if t.AgentText != "" {
		b.WriteString("\nagent: ")
		b.WriteString(t.AgentText)
	}
	return Memory{
		ID:               t.ID,
		Content:          b.String(),
		Importance:       t.Importance,
		Confidence:       0.8,
		EmotionalValence: t.EmotionIntensity,
		CreatedAt:        t.CreatedAt,
		LastAccessedAt:   now,
		Source:           source,
	}
}

// Context renders the buffered turns oldest-first for prompt building.
func (m *WorkingMemory) Context() string {
	m.mu.Lock()
	turns := make([]ConversationTurn, len(m.turns))
	copy(turns, m.turns)
	m.mu.Unlock()

	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "[%s] user: %s\n", t.CreatedAt.Format("15:04"), t.UserText)
		if t.AgentText != "" {
			fmt.Fprintf(&b, "[%s] agent: %s\n", t.CreatedAt.Format("15:04"), t.AgentText)
		}
	}
	return b.String()
}

// RecentTurns returns up to n of the newest turns, oldest first.
func (m *WorkingMemory) RecentTurns(n int) []ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || len(m.turns) == 0 {
		return nil
	}
	if n > len(m.turns) {
		n = len(m.turns)
	}
	out := make([]ConversationTurn, n)
	copy(out, m.turns[len(m.turns)-n:])
	return out
}

// LastTurn returns the newest turn, if any.
func (m *WorkingMemory) LastTurn() (ConversationTurn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.turns) == 0 {
		return ConversationTurn{}, false
	}
	return m.turns[len(m.turns)-1], true
}

// Search returns turns whose text contains the keyword, case-insensitive.
func (m *WorkingMemory) Search(keyword string) []ConversationTurn {
	needle := strings.ToLower(keyword)
	if needle == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ConversationTurn
	for _, t := range m.turns {
		if strings.Contains(strings.ToLower(t.UserText), needle) ||
			strings.Contains(strings.ToLower(t.AgentText), needle) {
			out = append(out, t)
		}
	}
	return out
}

// CleanupExpired drops turns older than the retention window,
// independent of capacity eviction, and returns how many were removed.
func (m *WorkingMemory) CleanupExpired() int {
	cutoff := m.clock().Add(-m.cfg.Retention)

	m.mu.Lock()
	kept := m.turns[:0]
	removed := 0
	for _, t := range m.turns {
		if t.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	m.turns = kept
	m.stats.Expired += int64(removed)
	m.mu.Unlock()

	if removed > 0 {
		m.log.Debug().Int("removed", removed).Msg("expired turns cleaned up")
	}
	return removed
}

// Clear empties the buffer. With promoteAll, every buffered turn is
// first pushed to long-term storage with bounded concurrency; store
// failures are counted but do not stop the clear.
func (m *WorkingMemory) Clear(ctx context.Context, promoteAll bool) error {
	m.mu.Lock()
	turns := make([]ConversationTurn, len(m.turns))
	copy(turns, m.turns)
	m.mu.Unlock()

	if promoteAll && len(turns) > 0 {
		err := util.Parallel(ctx, turns, clearPromoteWorkers, func(ctx context.Context, t ConversationTurn) error {
			// Store failures are counted inside promote; only
			// cancellation aborts the clear.
			_ = m.promote(ctx, t, "clear")
			return ctx.Err()
		})
		if err != nil {
			return fmt.Errorf("promote before clear: %w", err)
		}
	}

	m.mu.Lock()
	m.turns = m.turns[:0]
	m.mu.Unlock()

	m.log.Info().Int("dropped", len(turns)).Bool("promote_all", promoteAll).Msg("working memory cleared")
	return nil
}

// PromoteManually pushes one buffered turn to long-term storage by id.
func (m *WorkingMemory) PromoteManually(ctx context.Context, turnID, reason string) error {
	m.mu.Lock()
	var turn ConversationTurn
	found := false
	for _, t := range m.turns {
		if t.ID == turnID {
			turn = t
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: turn %s", ErrNotFound, turnID)
	}
	if err := m.promote(ctx, turn, "manual"); err != nil {
		return err
	}

	m.mu.Lock()
	m.stats.ManualPromotions++
	m.mu.Unlock()
	m.log.Info().Str("turn", turnID).Str("reason", reason).Msg("turn promoted manually")
	return nil
}

// Statistics returns a snapshot of the counters.
func (m *WorkingMemory) Statistics() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Size = len(m.turns)
	s.Capacity = m.cfg.Capacity
	return s
}
