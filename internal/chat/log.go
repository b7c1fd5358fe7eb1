package chat

import (
	"sync"
	"time"

	"github.com/dershov/screenassist/internal/config"
	"github.com/dershov/screenassist/internal/domain"
)

// Log is the ordered, append-only transcript of one live session.
// Append order is chronological order; messages are never mutated after
// they are added.
type Log struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
	now      func() time.Time
}

func NewLog() *Log {
	return &Log{now: time.Now}
}

// Append adds a message stamped with the current display time.
func (l *Log) Append(role domain.Role, text string) domain.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := domain.ChatMessage{
		Role: role,
		Text: text,
		Time: l.now().Format(config.TimeLayout),
	}
	l.messages = append(l.messages, msg)
	return msg
}

// Snapshot returns a value copy of the transcript. Later appends or a
// Clear never affect a returned snapshot.
func (l *Log) Snapshot() []domain.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// Clear empties the transcript. Only valid against the live session;
// persisted sessions keep their own snapshots.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}
