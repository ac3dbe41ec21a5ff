package core

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	broken bool
	closed bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken || c.closed {
		return 0, errBrokenPipe
	}
	return c.buf.Write(p)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestSession(t *testing.T, name string) (*Session, *fakeConn) {
	t.Helper()

	conn := &fakeConn{}
	return NewSession(conn, name, "127.0.0.1:40000", time.Now()), conn
}

func mustContainOnce(t *testing.T, got, want string) {
	t.Helper()

	if n := strings.Count(got, want); n != 1 {
		t.Fatalf("expected %q exactly once, found %d times in %q", want, n, got)
	}
}
