package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/loansphere/internal/core/domain"
)

type memoryEntry struct {
	session   *domain.BulkSession
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Entries expire ttl after their
// last save.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Save(_ context.Context, session *domain.BulkSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("save session: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, entry := range s.entries {
		if s.expired(entry, now) {
			delete(s.entries, id)
		}
	}
	s.entries[session.ID] = memoryEntry{session: session, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.BulkSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || s.expired(entry, s.now()) {
		delete(s.entries, id)
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id=%s", id))
	}
	return entry.session, nil
}

func (s *MemoryStore) expired(entry memoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.After(entry.expiresAt)
}
