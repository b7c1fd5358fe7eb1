package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/dershov/screenassist/internal/domain"
)

// SQLiteStore persists sessions and settings in a local SQLite file.
// It is the default backend: durable, local, no external service.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY,
			date TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			media BLOB NOT NULL,
			chat TEXT NOT NULL DEFAULT '[]'
		);
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Add(ctx context.Context, session *domain.RecordedSession) error {
	chat, err := marshalChat(session.Chat)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, date, mime_type, media, chat)
		VALUES (?, ?, ?, ?, ?)
	`, session.ID, session.Date, session.MIMEType, session.Media, string(chat))
	if err != nil {
		return fmt.Errorf("add session: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]domain.RecordedSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, mime_type, media, chat
		FROM sessions
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var sessions []domain.RecordedSession
	for rows.Next() {
		var session domain.RecordedSession
		var chat string
		if err := rows.Scan(&session.ID, &session.Date, &session.MIMEType,
			&session.Media, &chat); err != nil {
			return nil, fmt.Errorf("scan session: %w: %v", domain.ErrStorageUnavailable, err)
		}
		if session.Chat, err = unmarshalChat([]byte(chat)); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*domain.RecordedSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, date, mime_type, media, chat
		FROM sessions
		WHERE id = ?
	`, id)

	var session domain.RecordedSession
	var chat string
	err := row.Scan(&session.ID, &session.Date, &session.MIMEType, &session.Media, &chat)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w: %v", domain.ErrStorageUnavailable, err)
	}
	if session.Chat, err = unmarshalChat([]byte(chat)); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("load setting: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return value, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("save setting: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

var (
	_ SessionStore  = (*SQLiteStore)(nil)
	_ SettingsStore = (*SQLiteStore)(nil)
)
