package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memorySession struct {
	sess      Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory with TTL-based expiry.
type MemoryStore struct {
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

// NewMemoryStore creates an in-memory store. Sessions expire ttl after
// their last access; Sweep removes them.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, sessions: make(map[string]*memorySession)}
}

func (s *MemoryStore) GetOrCreate(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if id != "" {
		if ms, ok := s.sessions[id]; ok && ms.expiresAt.After(now) {
			ms.expiresAt = now.Add(s.ttl)
			snap := ms.sess
			snap.Turns = cloneTurns(ms.sess.Turns)
			return snap, nil
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	ms := &memorySession{
		sess:      Session{ID: id, CreatedAt: now.UTC()},
		expiresAt: now.Add(s.ttl),
	}
	s.sessions[id] = ms
	return ms.sess, nil
}

func (s *MemoryStore) AppendTurns(_ context.Context, id string, turns ...Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	ms, ok := s.sessions[id]
	if !ok || !ms.expiresAt.After(now) {
		ms = &memorySession{sess: Session{ID: id, CreatedAt: now.UTC()}}
		s.sessions[id] = ms
	}
	ms.sess.Turns = append(ms.sess.Turns, turns...)
	ms.expiresAt = now.Add(s.ttl)
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, ms := range s.sessions {
		if !ms.expiresAt.After(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }
