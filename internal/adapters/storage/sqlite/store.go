package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/PabloGalante/tg-assistant/internal/domain"
)

// Store implements domain.SessionStore on a single SQLite table.
type Store struct {
	db *sql.DB
}

// NewStore opens dsn and creates the table if needed.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			user_id INTEGER PRIMARY KEY,
			thread_id TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, userID domain.UserID) (domain.SessionEntry, bool, error) {
	var (
		entry    domain.SessionEntry
		threadID string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, thread_id, created_at, updated_at FROM sessions WHERE user_id = ?`,
		int64(userID)).Scan(&entry.UserID, &threadID, &entry.CreatedAt, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionEntry{}, false, nil
	}
	if err != nil {
		return domain.SessionEntry{}, false, fmt.Errorf("sqlite get session: %w", err)
	}
	entry.ThreadID = domain.ThreadID(threadID)
	return entry, true, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, entry domain.SessionEntry) (domain.SessionEntry, bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, thread_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		int64(entry.UserID), string(entry.ThreadID), utc(entry.CreatedAt), utc(entry.UpdatedAt))
	if err != nil {
		return domain.SessionEntry{}, false, fmt.Errorf("sqlite insert session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return entry, true, nil
	}

	existing, ok, err := s.Get(ctx, entry.UserID)
	if err != nil {
		return domain.SessionEntry{}, false, err
	}
	if !ok {
		return domain.SessionEntry{}, false, errors.New("sqlite PutIfAbsent: binding vanished after conflict")
	}
	return existing, false, nil
}

func (s *Store) Put(ctx context.Context, entry domain.SessionEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, thread_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		int64(entry.UserID), string(entry.ThreadID), utc(entry.CreatedAt), utc(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite put session: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID domain.UserID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, int64(userID)); err != nil {
		return fmt.Errorf("sqlite delete session: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, limit int) ([]domain.SessionEntry, error) {
	query := `SELECT user_id, thread_id, created_at, updated_at FROM sessions ORDER BY updated_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionEntry
	for rows.Next() {
		var (
			entry    domain.SessionEntry
			threadID string
		)
		if err := rows.Scan(&entry.UserID, &threadID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}
		entry.ThreadID = domain.ThreadID(threadID)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

var (
	_ domain.SessionStore  = (*Store)(nil)
	_ domain.SessionLister = (*Store)(nil)
)
