package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dershov/screenassist/internal/domain"
)

func TestLogAppendPreservesOrder(t *testing.T) {
	l := NewLog()
	l.now = func() time.Time { return time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC) }

	l.Append(domain.RoleUser, "first")
	l.Append(domain.RoleAssistant, "second")
	l.Append(domain.RoleUser, "third")

	msgs := l.Snapshot()
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "third", msgs[2].Text)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "10:30:00", msgs[0].Time)
}

func TestLogSnapshotIsDeepCopy(t *testing.T) {
	l := NewLog()
	l.Append(domain.RoleUser, "kept")

	snap := l.Snapshot()
	require.Len(t, snap, 1)

	l.Append(domain.RoleAssistant, "later")
	l.Clear()

	assert.Len(t, snap, 1)
	assert.Equal(t, "kept", snap[0].Text)
	assert.Equal(t, 0, l.Len())
}

func TestLogClear(t *testing.T) {
	l := NewLog()
	l.Append(domain.RoleUser, "a")
	l.Append(domain.RoleAssistant, "b")
	require.Equal(t, 2, l.Len())

	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Snapshot())

	// Appending after a clear starts a fresh transcript.
	l.Append(domain.RoleUser, "c")
	msgs := l.Snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "c", msgs[0].Text)
}
