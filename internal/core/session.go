package core

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vovakirdan/linechat/internal/utils"
)

// Conn is the write side of a session stream. net.Conn satisfies it.
type Conn interface {
	io.Writer
	io.Closer
}

// Session is a connected chat participant as seen by the registry.
type Session struct {
	ID       string
	Name     string
	Remote   string
	JoinedAt time.Time

	conn      Conn
	writeMu   sync.Mutex
	alive     atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps a stream that already completed the username handshake.
// Name must be non-empty; callers substitute a guest name beforehand.
func NewSession(conn Conn, name, remote string, joinedAt time.Time) *Session {
	s := &Session{
		ID:       utils.NewID(),
		Name:     name,
		Remote:   remote,
		JoinedAt: joinedAt,
		conn:     conn,
	}
	s.alive.Store(true)
	return s
}

// Send writes text to the stream as is. A failed write marks the session dead.
func (s *Session) Send(text string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := io.WriteString(s.conn, text); err != nil {
		s.alive.Store(false)
		return err
	}
	return nil
}

// Alive reports whether the stream is still usable as far as the session knows.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

// Close closes the underlying stream. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.alive.Store(false)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
