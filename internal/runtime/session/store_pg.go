package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tutor-platform/pkg/errors"
)

const pgSchema = `CREATE TABLE IF NOT EXISTS tutor_sessions (
	id             TEXT PRIMARY KEY,
	history        JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at     TIMESTAMPTZ NOT NULL,
	last_active_at TIMESTAMPTZ NOT NULL
)`

// PgStore Postgres 实现；history 以 JSONB 存于单行
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 创建连接池、Ping 并建表
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgStore{pool: pool}, nil
}

// Get 实现 Store
func (s *PgStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		history               []byte
		createdAt, lastActive time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT history, created_at, last_active_at FROM tutor_sessions WHERE id = $1`,
		id).Scan(&history, &createdAt, &lastActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, err
	}
	out := &Session{ID: id, CreatedAt: createdAt.UTC(), LastActiveAt: lastActive.UTC()}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &out.History); err != nil {
			return nil, errors.Wrap(err, "decode session history")
		}
	}
	return out, nil
}

// Put 实现 Store
func (s *PgStore) Put(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	history, err := json.Marshal(sess.History)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tutor_sessions (id, history, created_at, last_active_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET history = EXCLUDED.history, last_active_at = EXCLUDED.last_active_at`,
		sess.ID, history, sess.CreatedAt, sess.LastActiveAt)
	return err
}

func (s *PgStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close 关闭连接池
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
