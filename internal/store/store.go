package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session record does not exist.
var ErrNotFound = errors.New("not found")

// SessionRecord is an audit row for one chat session. Message bodies are never stored.
type SessionRecord struct {
	ID         string
	Username   string
	RemoteAddr string
	JoinedAt   time.Time
	LeftAt     *time.Time // nil while the session is connected
}

// SessionStore persists session connect/disconnect history.
type SessionStore interface {
	// RecordJoin inserts a record for a session that completed the handshake.
	RecordJoin(ctx context.Context, rec SessionRecord) error
	// RecordLeave stamps the disconnect time. Returns ErrNotFound for unknown ids.
	RecordLeave(ctx context.Context, id string, at time.Time) error
	// RecentSessions returns up to limit records, newest join first.
	RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	Close() error
}
