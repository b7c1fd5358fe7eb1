package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dershov/screenassist/internal/domain"
)

// PostgresStore persists sessions and settings in Postgres. Each method
// uses its own implicit transaction through the pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	return pool, nil
}

// RunMigrations brings the session schema up to date from the embedded
// migration files before the Postgres store is used.
func RunMigrations(databaseURL string, migrationsFS fs.FS) error {
	src, err := iofs.New(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("connect for migrations: %w: %v", domain.ErrStorageUnavailable, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("session schema ready", "version", version, "dirty", dirty)
	return nil
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Add(ctx context.Context, session *domain.RecordedSession) error {
	chat, err := marshalChat(session.Chat)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, date, mime_type, media, chat)
		VALUES ($1, $2, $3, $4, $5)
	`, session.ID, session.Date, session.MIMEType, session.Media, chat)
	if err != nil {
		return fmt.Errorf("add session: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]domain.RecordedSession, error) {
	rows, err := s.pool.Query(ctx, `
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
		var chat []byte
		if err := rows.Scan(&session.ID, &session.Date, &session.MIMEType,
			&session.Media, &chat); err != nil {
			return nil, fmt.Errorf("scan session: %w: %v", domain.ErrStorageUnavailable, err)
		}
		if session.Chat, err = unmarshalChat(chat); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*domain.RecordedSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, date, mime_type, media, chat
		FROM sessions
		WHERE id = $1
	`, id)

	var session domain.RecordedSession
	var chat []byte
	err := row.Scan(&session.ID, &session.Date, &session.MIMEType, &session.Media, &chat)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w: %v", domain.ErrStorageUnavailable, err)
	}
	if session.Chat, err = unmarshalChat(chat); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("load setting: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return value, nil
}

func (s *PostgresStore) Save(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("save setting: %w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

var (
	_ SessionStore  = (*PostgresStore)(nil)
	_ SettingsStore = (*PostgresStore)(nil)
)
