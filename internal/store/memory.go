package store

import (
	"context"
	"sync"

	"github.com/dershov/screenassist/internal/domain"
)

// MemoryStore keeps sessions and settings in process memory. It backs
// tests and degraded runs where no durable store is reachable.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions []domain.RecordedSession
	settings map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: make(map[string]string)}
}

func (s *MemoryStore) Add(ctx context.Context, session *domain.RecordedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append(s.sessions, copySession(session))
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]domain.RecordedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RecordedSession, 0, len(s.sessions))
	for i := len(s.sessions) - 1; i >= 0; i-- {
		out = append(out, copySession(&s.sessions[i]))
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*domain.RecordedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.sessions {
		if s.sessions[i].ID == id {
			session := copySession(&s.sessions[i])
			return &session, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings[key], nil
}

func (s *MemoryStore) Save(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// copySession deep-copies media and chat so stored records stay immutable
// regardless of what callers do with their slices.
func copySession(in *domain.RecordedSession) domain.RecordedSession {
	out := *in
	out.Media = append([]byte(nil), in.Media...)
	out.Chat = append([]domain.ChatMessage(nil), in.Chat...)
	return out
}

var (
	_ SessionStore  = (*MemoryStore)(nil)
	_ SettingsStore = (*MemoryStore)(nil)
)
