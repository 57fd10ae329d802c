package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/PabloGalante/tg-assistant/internal/domain"
)

// SessionStore keeps user → thread bindings for the life of the process.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.UserID]domain.SessionEntry
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.UserID]domain.SessionEntry),
	}
}

func (s *SessionStore) Get(ctx context.Context, userID domain.UserID) (domain.SessionEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[userID]
	return entry, ok, nil
}

func (s *SessionStore) PutIfAbsent(ctx context.Context, entry domain.SessionEntry) (domain.SessionEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.sessions[entry.UserID]; exists {
		return existing, false, nil
	}
	s.sessions[entry.UserID] = entry
	return entry, true, nil
}

func (s *SessionStore) Put(ctx context.Context, entry domain.SessionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[entry.UserID] = entry
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
	return nil
}

func (s *SessionStore) List(ctx context.Context, limit int) ([]domain.SessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SessionEntry, 0, len(s.sessions))
	for _, entry := range s.sessions {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var (
	_ domain.SessionStore  = (*SessionStore)(nil)
	_ domain.SessionLister = (*SessionStore)(nil)
)
