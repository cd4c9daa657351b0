// Package memory provides an in-memory session.Store for tests and
// single-process deployments. Sessions are lost on restart. Optional LRU
// eviction caps the number of live sessions.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/quillgate/quillgate/pkg/session"
)

// entry holds one session and its LRU position.
type entry struct {
	sess    *session.Session
	lruElem *list.Element
}

// Store is an in-memory session.Store with optional LRU eviction.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	lruList  *list.List // front = most recently used
	maxSize  int        // 0 = unlimited
	maxChars int
}

var _ session.Store = (*Store)(nil)

// New creates an in-memory store. maxSize of 0 grows without limit;
// otherwise the least recently used session is evicted at capacity.
// maxChars of 0 applies session.DefaultMaxContextChars.
func New(maxSize, maxChars int) *Store {
	if maxChars == 0 {
		maxChars = session.DefaultMaxContextChars
	}
	return &Store{
		entries:  make(map[string]*entry),
		lruList:  list.New(),
		maxSize:  maxSize,
		maxChars: maxChars,
	}
}

// getOrCreate returns the live entry for id, creating and evicting as
// needed. Caller holds the mutex.
func (s *Store) getOrCreate(id string) *entry {
	if e, ok := s.entries[id]; ok {
		s.lruList.MoveToFront(e.lruElem)
		return e
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	now := time.Now()
	e := &entry{
		sess: &session.Session{
			ID:        id,
			CreatedAt: now,
			UpdatedAt: now,
		},
		lruElem: s.lruList.PushFront(id),
	}
	s.entries[id] = e
	return e
}

// evictOldest drops the least recently used session. Caller holds the
// mutex.
func (s *Store) evictOldest() {
	oldest := s.lruList.Back()
	if oldest == nil {
		return
	}
	id := oldest.Value.(string)
	s.lruList.Remove(oldest)
	delete(s.entries, id)
}

// snapshot copies a session so callers cannot mutate stored state.
func snapshot(sess *session.Session) *session.Session {
	out := *sess
	out.Attachments = append([]session.Attachment(nil), sess.Attachments...)
	return &out
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.getOrCreate(id).sess), nil
}

func (s *Store) AppendContext(ctx context.Context, id, text string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreate(id)
	e.sess.Context = session.TrimTail(e.sess.Context+text, s.maxChars)
	e.sess.UpdatedAt = time.Now()
	return snapshot(e.sess), nil
}

func (s *Store) Attach(ctx context.Context, id string, atts ...session.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreate(id)
	e.sess.Attachments = append(e.sess.Attachments, atts...)
	e.sess.UpdatedAt = time.Now()
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return session.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *Store) Close() error { return nil }
