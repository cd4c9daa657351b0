// Package redis provides a Redis-backed session.Store for multi-process
// deployments. Sessions are stored as JSON values under a key prefix,
// with an idle TTL refreshed on every write so abandoned sessions expire
// instead of accumulating.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quillgate/quillgate/pkg/session"
)

const keyPrefix = "quillgate:session:"

// Config holds Redis connection and behavior settings.
type Config struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is the AUTH credential, empty for none.
	Password string

	// DB is the logical database number.
	DB int

	// IdleTTL expires a session this long after its last write.
	// Default: 24h. Zero applies the default; use a negative value for
	// no expiry.
	IdleTTL time.Duration

	// MaxContextChars caps accumulated context. Zero applies
	// session.DefaultMaxContextChars.
	MaxContextChars int
}

// Store is a Redis-backed session.Store.
type Store struct {
	client   *redis.Client
	ttl      time.Duration
	maxChars int
}

var _ session.Store = (*Store)(nil)

// New creates a Store and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = 24 * time.Hour
	}
	if cfg.IdleTTL < 0 {
		cfg.IdleTTL = 0 // redis: zero means no expiry
	}
	if cfg.MaxContextChars == 0 {
		cfg.MaxContextChars = session.DefaultMaxContextChars
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session redis: ping: %w", err)
	}

	return &Store{
		client:   client,
		ttl:      cfg.IdleTTL,
		maxChars: cfg.MaxContextChars,
	}, nil
}

func key(id string) string { return keyPrefix + id }

// load fetches the session, returning nil without error when absent.
func (s *Store) load(ctx context.Context, id string) (*session.Session, error) {
	val, err := s.client.Get(ctx, key(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session redis: get: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("session redis: unmarshal: %w", err)
	}
	return &sess, nil
}

func (s *Store) save(ctx context.Context, sess *session.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session redis: marshal: %w", err)
	}
	if err := s.client.Set(ctx, key(sess.ID), string(data), s.ttl).Err(); err != nil {
		return fmt.Errorf("session redis: set: %w", err)
	}
	return nil
}

func newSession(id string) *session.Session {
	now := time.Now()
	return &session.Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = newSession(id)
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func (s *Store) AppendContext(ctx context.Context, id, text string) (*session.Session, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = newSession(id)
	}

	sess.Context = session.TrimTail(sess.Context+text, s.maxChars)
	sess.UpdatedAt = time.Now()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) Attach(ctx context.Context, id string, atts ...session.Attachment) error {
	sess, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		sess = newSession(id)
	}

	sess.Attachments = append(sess.Attachments, atts...)
	sess.UpdatedAt = time.Now()
	return s.save(ctx, sess)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, key(id)).Result()
	if err != nil {
		return fmt.Errorf("session redis: del: %w", err)
	}
	if n == 0 {
		return session.ErrNotFound
	}
	return nil
}

// Count scans the key prefix. Linear in the number of sessions; intended
// for diagnostics, not hot paths.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("session redis: scan: %w", err)
	}
	return count, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
