package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/linechat/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	username    TEXT NOT NULL,
	remote_addr TEXT NOT NULL,
	joined_at   DATETIME NOT NULL,
	left_at     DATETIME
);
CREATE INDEX IF NOT EXISTS idx_sessions_joined ON sessions(joined_at DESC);
`

// SQLiteStore implements store.SessionStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate creates the sessions table if needed.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordJoin inserts a fresh session record.
func (s *SQLiteStore) RecordJoin(ctx context.Context, rec store.SessionRecord) error {
	query := `
		INSERT INTO sessions (id, username, remote_addr, joined_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.Username, rec.RemoteAddr, rec.JoinedAt.UTC()); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecordLeave sets left_at for the given session.
func (s *SQLiteStore) RecordLeave(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sessions SET left_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecentSessions lists the newest sessions first.
func (s *SQLiteStore) RecentSessions(ctx context.Context, limit int) ([]store.SessionRecord, error) {
	query := `
		SELECT id, username, remote_addr, joined_at, left_at
		FROM sessions
		ORDER BY joined_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var records []store.SessionRecord
	for rows.Next() {
		var (
			rec    store.SessionRecord
			leftAt sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.Username, &rec.RemoteAddr, &rec.JoinedAt, &leftAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if leftAt.Valid {
			t := leftAt.Time
			rec.LeftAt = &t
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return records, nil
}
