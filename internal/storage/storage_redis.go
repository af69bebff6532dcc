package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/keshon/heartflow/internal/heart"
	"github.com/keshon/heartflow/pkg/retrylimit"
)

const (
	redisKeyPrefix = "heartflow:memory:"
	redisIndexKey  = "heartflow:memories"
)

// RedisStore keeps memories as JSON values with a set index, for
// deployments where several processes share one memory pool.
type RedisStore struct {
	client *redis.Client
	lim    *retrylimit.AdaptiveLimiter
	log    zerolog.Logger
}

func NewRedisStore(url string, log zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{
		client: client,
		lim:    retrylimit.NewAdaptiveLimiter(10, 1, 50, 1, 0.5),
		log:    log,
	}, nil
}

// isRedisTransient treats everything except a miss or a dead context as
// retryable.
func isRedisTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (s *RedisStore) withRetry(ctx context.Context, fn func() error) error {
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 5
	cfg.Classifier = isRedisTransient
	return retrylimit.WithRetryConfig(ctx, fn, s.lim, cfg)
}

func (s *RedisStore) SaveMemory(ctx context.Context, m heart.Memory) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}

	err = s.withRetry(ctx, func() error {
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, redisKeyPrefix+m.ID, data, 0)
		pipe.SAdd(ctx, redisIndexKey, m.ID)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("save memory %s: %w", m.ID, err)
	}
	return nil
}

func (s *RedisStore) GetMemory(ctx context.Context, id string) (heart.Memory, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return heart.Memory{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return heart.Memory{}, fmt.Errorf("get memory %s: %w", id, err)
	}
	var m heart.Memory
	if err := json.Unmarshal(data, &m); err != nil {
		return heart.Memory{}, fmt.Errorf("unmarshal memory %s: %w", id, err)
	}
	return m, nil
}

func (s *RedisStore) ListMemories(ctx context.Context) ([]heart.Memory, error) {
	ids, err := s.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	out := make([]heart.Memory, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMemory(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// Value expired or was deleted out of band; drop the
			// dangling index entry.
			s.client.SRem(ctx, redisIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *RedisStore) DeleteMemory(ctx context.Context, id string) error {
	var deleted int64
	err := s.withRetry(ctx, func() error {
		pipe := s.client.TxPipeline()
		del := pipe.Del(ctx, redisKeyPrefix+id)
		pipe.SRem(ctx, redisIndexKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		deleted = del.Val()
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *RedisStore) Touch(ctx context.Context, id string) error {
	return s.update(ctx, id, func(m *heart.Memory) {
		m.AccessCount++
		m.LastAccessedAt = time.Now()
	})
}

func (s *RedisStore) Reinforce(ctx context.Context, id string) error {
	return s.update(ctx, id, func(m *heart.Memory) {
		m.ReinforcementCount++
		m.AccessCount++
		m.LastAccessedAt = time.Now()
	})
}

func (s *RedisStore) update(ctx context.Context, id string, mutate func(*heart.Memory)) error {
	m, err := s.GetMemory(ctx, id)
	if err != nil {
		return err
	}
	mutate(&m)
	return s.SaveMemory(ctx, m)
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	memories, err := s.ListMemories(ctx)
	if err != nil {
		return Stats{}, err
	}
	return aggregate(memories), nil
}

func (s *RedisStore) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	memories, err := s.ListMemories(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, m := range memories {
		if lastTouched(m).Before(cutoff) {
			if err := s.DeleteMemory(ctx, m.ID); err != nil && !errors.Is(err, ErrNotFound) {
				return removed, err
			}
			removed++
		}
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("stale memories cleaned up")
	}
	return removed, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
