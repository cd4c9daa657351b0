// Package postgres provides a PostgreSQL-backed session.Store. Context
// trimming happens in SQL (right() counts characters, matching the
// rune-based trim of the other backends), so concurrent appends to one
// session never lose text.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillgate/quillgate/pkg/session"
)

// Store is a PostgreSQL-backed session.Store.
type Store struct {
	pool     *pgxpool.Pool
	maxChars int
}

var _ session.Store = (*Store)(nil)

// New creates a Store, verifies connectivity, and optionally runs
// migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()
	if cfg.MaxContextChars == 0 {
		cfg.MaxContextChars = session.DefaultMaxContextChars
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("session postgres: parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("session postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("session postgres: ping: %w", err)
	}

	s := &Store{pool: pool, maxChars: cfg.MaxContextChars}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("session postgres: migrate: %w", err)
		}
	}
	return s, nil
}

// scanSession reads one sessions row.
func scanSession(row interface{ Scan(...any) error }) (*session.Session, error) {
	var sess session.Session
	var attachments []byte
	err := row.Scan(&sess.ID, &sess.Context, &attachments, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &sess.Attachments); err != nil {
			return nil, fmt.Errorf("decoding attachments: %w", err)
		}
	}
	return &sess, nil
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id) VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET id = sessions.id
		RETURNING id, context, attachments, created_at, updated_at`,
		id)

	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("session postgres: get: %w", err)
	}
	return sess, nil
}

func (s *Store) AppendContext(ctx context.Context, id, text string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, context) VALUES ($1, right($2, $3))
		ON CONFLICT (id) DO UPDATE
		SET context = right(sessions.context || $2, $3), updated_at = now()
		RETURNING id, context, attachments, created_at, updated_at`,
		id, text, s.maxChars)

	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("session postgres: append: %w", err)
	}
	return sess, nil
}

func (s *Store) Attach(ctx context.Context, id string, atts ...session.Attachment) error {
	data, err := json.Marshal(atts)
	if err != nil {
		return fmt.Errorf("session postgres: encoding attachments: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, attachments) VALUES ($1, $2::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET attachments = sessions.attachments || $2::jsonb, updated_at = now()`,
		id, data)
	if err != nil {
		return fmt.Errorf("session postgres: attach: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("session postgres: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM sessions").Scan(&count); err != nil {
		return 0, fmt.Errorf("session postgres: count: %w", err)
	}
	return count, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// IdleCleanup deletes sessions idle longer than maxIdle. Intended to run
// periodically from the server's background loop.
func (s *Store) IdleCleanup(ctx context.Context, maxIdle time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM sessions WHERE updated_at < now() - make_interval(secs => $1)",
		maxIdle.Seconds())
	if err != nil {
		return 0, fmt.Errorf("session postgres: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}
