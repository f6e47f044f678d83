package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps live sessions in-process, one entry per browser
// connection or REPL run. Idle sessions are evicted after the TTL.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewMemory builds the default store. A ttl of zero disables eviction.
func NewMemory(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	if ttl > 0 {
		go s.sweep()
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context) (*Session, error) {
	sess := New()
	s.mu.Lock()
	s.sessions[sess.ID] = sess.Clone()
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	sess.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.sessions[sess.ID] = sess.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// sweep evicts sessions idle longer than the TTL.
func (s *MemoryStore) sweep() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, sess := range s.sessions {
				if now.Sub(sess.UpdatedAt) > s.ttl {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
