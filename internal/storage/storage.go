// Package storage provides long-term memory persistence behind a small
// interface with file, SQLite and Redis backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/keshon/heartflow/internal/heart"
)

var (
	ErrNotFound = errors.New("memory not found")
	ErrClosed   = errors.New("store is closed")
)

// Store is the full long-term memory surface. Every backend implements
// it; the working memory only needs the SaveMemory slice.
type Store interface {
	heart.LongTermStore

	GetMemory(ctx context.Context, id string) (heart.Memory, error)
	ListMemories(ctx context.Context) ([]heart.Memory, error)
	DeleteMemory(ctx context.Context, id string) error

	// Touch bumps the access count and access time, feeding the
	// strength model's access factor.
	Touch(ctx context.Context, id string) error

	// Reinforce marks a deliberate repetition of the memory, which
	// slows its decay.
	Reinforce(ctx context.Context, id string) error

	Stats(ctx context.Context) (Stats, error)

	// CleanupOlderThan removes memories untouched for longer than
	// maxAge and reports how many were dropped.
	CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error)

	Close() error
}

// Stats summarizes a backend's contents.
type Stats struct {
	TotalMemories int       `json:"total_memories"`
	AvgImportance float64   `json:"avg_importance"`
	OldestAt      time.Time `json:"oldest_at"`
	NewestAt      time.Time `json:"newest_at"`
}

// lastTouched is the reference instant for age-based cleanup.
func lastTouched(m heart.Memory) time.Time {
	if !m.LastAccessedAt.IsZero() {
		return m.LastAccessedAt
	}
	return m.CreatedAt
}

// aggregate folds a memory list into Stats.
func aggregate(memories []heart.Memory) Stats {
	s := Stats{TotalMemories: len(memories)}
	if len(memories) == 0 {
		return s
	}
	var sum float64
	s.OldestAt = memories[0].CreatedAt
	s.NewestAt = memories[0].CreatedAt
	for _, m := range memories {
		sum += m.Importance
		if m.CreatedAt.Before(s.OldestAt) {
			s.OldestAt = m.CreatedAt
		}
		if m.CreatedAt.After(s.NewestAt) {
			s.NewestAt = m.CreatedAt
		}
	}
	s.AvgImportance = sum / float64(len(memories))
	return s
}
