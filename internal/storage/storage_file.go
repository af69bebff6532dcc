package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/heartflow/datastore"
	"github.com/keshon/heartflow/internal/heart"
)

const memoryKeyPrefix = "memory:"

// FileStore keeps memories in the JSON datastore. Suits a single
// process; writes are flushed by the datastore's auto-save.
type FileStore struct {
	ds     *datastore.DataStore
	log    zerolog.Logger
	closed atomic.Bool
}

func NewFileStore(path string, log zerolog.Logger) (*FileStore, error) {
	ds, err := datastore.New(path)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	return &FileStore{ds: ds, log: log}, nil
}

func (s *FileStore) SaveMemory(ctx context.Context, m heart.Memory) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.ds.Add(memoryKeyPrefix+m.ID, m)
	s.log.Debug().Str("id", m.ID).Msg("memory saved")
	return nil
}

func (s *FileStore) GetMemory(ctx context.Context, id string) (heart.Memory, error) {
	if s.closed.Load() {
		return heart.Memory{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return heart.Memory{}, err
	}
	raw, ok := s.ds.Get(memoryKeyPrefix + id)
	if !ok {
		return heart.Memory{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeMemory(raw)
}

func (s *FileStore) ListMemories(ctx context.Context) ([]heart.Memory, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	var out []heart.Memory
	for _, key := range s.ds.Keys() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !strings.HasPrefix(key, memoryKeyPrefix) {
			continue
		}
		raw, ok := s.ds.Get(key)
		if !ok {
			continue
		}
		m, err := decodeMemory(raw)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("skipping undecodable record")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *FileStore) DeleteMemory(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := s.ds.Get(memoryKeyPrefix + id); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.ds.Delete(memoryKeyPrefix + id)
	return nil
}

func (s *FileStore) Touch(ctx context.Context, id string) error {
	return s.update(ctx, id, func(m *heart.Memory) {
		m.AccessCount++
		m.LastAccessedAt = time.Now()
	})
}

func (s *FileStore) Reinforce(ctx context.Context, id string) error {
	return s.update(ctx, id, func(m *heart.Memory) {
		m.ReinforcementCount++
		m.AccessCount++
		m.LastAccessedAt = time.Now()
	})
}

func (s *FileStore) update(ctx context.Context, id string, mutate func(*heart.Memory)) error {
	m, err := s.GetMemory(ctx, id)
	if err != nil {
		return err
	}
	mutate(&m)
	s.ds.Add(memoryKeyPrefix+id, m)
	return nil
}

func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	memories, err := s.ListMemories(ctx)
	if err != nil {
		return Stats{}, err
	}
	return aggregate(memories), nil
}

func (s *FileStore) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	memories, err := s.ListMemories(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, m := range memories {
		if lastTouched(m).Before(cutoff) {
			s.ds.Delete(memoryKeyPrefix + m.ID)
			removed++
		}
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("stale memories cleaned up")
	}
	return removed, nil
}

func (s *FileStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.ds.Close()
}

// decodeMemory round-trips the datastore's generic value into the typed
// struct.
func decodeMemory(raw any) (heart.Memory, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return heart.Memory{}, fmt.Errorf("marshal record: %w", err)
	}
	var m heart.Memory
	if err := json.Unmarshal(data, &m); err != nil {
		return heart.Memory{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return m, nil
}
