package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/keshon/heartflow/internal/heart"
	"github.com/keshon/heartflow/pkg/retrylimit"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id                  TEXT PRIMARY KEY,
	content             TEXT NOT NULL,
	importance          REAL NOT NULL,
	confidence          REAL NOT NULL,
	valence             REAL NOT NULL,
	access_count        INTEGER NOT NULL DEFAULT 0,
	reinforcement_count INTEGER NOT NULL DEFAULT 0,
	created_at          INTEGER NOT NULL,
	last_accessed_at    INTEGER,
	source              TEXT
);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories (created_at);
`

// SQLiteStore persists memories in a WAL-mode SQLite database. Busy
// errors from concurrent writers are retried with backoff.
type SQLiteStore struct {
	db  *sqlx.DB
	log zerolog.Logger
}

func NewSQLiteStore(path string, log zerolog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &SQLiteStore{db: db, log: log}, nil
}

// memoryRow mirrors the memories table.
type memoryRow struct {
	ID                 string         `db:"id"`
	Content            string         `db:"content"`
	Importance         float64        `db:"importance"`
	Confidence         float64        `db:"confidence"`
	Valence            float64        `db:"valence"`
	AccessCount        int            `db:"access_count"`
	ReinforcementCount int            `db:"reinforcement_count"`
	CreatedAt          int64          `db:"created_at"`
	LastAccessedAt     sql.NullInt64  `db:"last_accessed_at"`
	Source             sql.NullString `db:"source"`
}

func toRow(m heart.Memory) memoryRow {
	r := memoryRow{
		ID:                 m.ID,
		Content:            m.Content,
		Importance:         m.Importance,
		Confidence:         m.Confidence,
		Valence:            m.EmotionalValence,
		AccessCount:        m.AccessCount,
		ReinforcementCount: m.ReinforcementCount,
		CreatedAt:          m.CreatedAt.UnixMilli(),
	}
	if !m.LastAccessedAt.IsZero() {
		r.LastAccessedAt = sql.NullInt64{Int64: m.LastAccessedAt.UnixMilli(), Valid: true}
	}
	if m.Source != "" {
		r.Source = sql.NullString{String: m.Source, Valid: true}
	}
	return r
}

func (r memoryRow) toMemory() heart.Memory {
	m := heart.Memory{
		ID:                 r.ID,
		Content:            r.Content,
		Importance:         r.Importance,
		Confidence:         r.Confidence,
		EmotionalValence:   r.Valence,
		AccessCount:        r.AccessCount,
		ReinforcementCount: r.ReinforcementCount,
		CreatedAt:          time.UnixMilli(r.CreatedAt),
		Source:             r.Source.String,
	}
	if r.LastAccessedAt.Valid {
		m.LastAccessedAt = time.UnixMilli(r.LastAccessedAt.Int64)
	}
	return m
}

// isSQLiteBusy matches lock contention errors worth retrying.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

func (s *SQLiteStore) withRetry(ctx context.Context, fn func() error) error {
	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxAttempts = 5
	cfg.Classifier = isSQLiteBusy
	return retrylimit.WithRetryConfig(ctx, fn, nil, cfg)
}

func (s *SQLiteStore) SaveMemory(ctx context.Context, m heart.Memory) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	row := toRow(m)
	err := s.withRetry(ctx, func() error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT OR REPLACE INTO memories
			(id, content, importance, confidence, valence, access_count, reinforcement_count, created_at, last_accessed_at, source)
			VALUES
			(:id, :content, :importance, :confidence, :valence, :access_count, :reinforcement_count, :created_at, :last_accessed_at, :source)`,
			row)
		return err
	})
	if err != nil {
		return fmt.Errorf("save memory %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetMemory(ctx context.Context, id string) (heart.Memory, error) {
	var row memoryRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM memories WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return heart.Memory{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return heart.Memory{}, fmt.Errorf("get memory %s: %w", id, err)
	}
	return row.toMemory(), nil
}

func (s *SQLiteStore) ListMemories(ctx context.Context) ([]heart.Memory, error) {
	var rows []memoryRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM memories ORDER BY created_at`); err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	out := make([]heart.Memory, len(rows))
	for i, r := range rows {
		out[i] = r.toMemory()
	}
	return out, nil
}

func (s *SQLiteStore) DeleteMemory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Touch(ctx context.Context, id string) error {
	return s.bump(ctx, id, `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?`)
}

func (s *SQLiteStore) Reinforce(ctx context.Context, id string) error {
	return s.bump(ctx, id, `
		UPDATE memories
		SET reinforcement_count = reinforcement_count + 1, access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?`)
}

func (s *SQLiteStore) bump(ctx context.Context, id, query string) error {
	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, time.Now().UnixMilli(), id)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("update memory %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	memories, err := s.ListMemories(ctx)
	if err != nil {
		return Stats{}, err
	}
	return aggregate(memories), nil
}

func (s *SQLiteStore) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM memories
			WHERE COALESCE(last_accessed_at, created_at) < ?`, cutoff)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	if n > 0 {
		s.log.Info().Int64("removed", n).Msg("stale memories cleaned up")
	}
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
