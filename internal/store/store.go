package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dershov/screenassist/internal/domain"
)

// SessionStore is the durable library of completed recordings, keyed by
// session id. Every call runs in its own transaction; no transaction is
// held across pipeline operations.
type SessionStore interface {
	// Add inserts a completed session.
	Add(ctx context.Context, session *domain.RecordedSession) error

	// List returns all sessions, most recently added first.
	List(ctx context.Context) ([]domain.RecordedSession, error)

	// Get returns one session or domain.ErrSessionNotFound.
	Get(ctx context.Context, id int64) (*domain.RecordedSession, error)

	// Delete removes a session. Deleting an absent id is a no-op.
	Delete(ctx context.Context, id int64) error

	Close() error
}

// SettingsStore persists process-wide configuration values such as the
// analysis credential.
type SettingsStore interface {
	// Load returns the stored value, or "" when the key is absent.
	Load(ctx context.Context, key string) (string, error)

	// Save writes the value, replacing any previous one.
	Save(ctx context.Context, key, value string) error
}

func marshalChat(chat []domain.ChatMessage) ([]byte, error) {
	if chat == nil {
		chat = []domain.ChatMessage{}
	}
	data, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("marshal chat: %w", err)
	}
	return data, nil
}

func unmarshalChat(data []byte) ([]domain.ChatMessage, error) {
	var chat []domain.ChatMessage
	if len(data) == 0 {
		return chat, nil
	}
	if err := json.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("unmarshal chat: %w", err)
	}
	return chat, nil
}
