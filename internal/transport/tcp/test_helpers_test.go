package tcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/events"
	"github.com/vovakirdan/linechat/internal/log"
	"github.com/vovakirdan/linechat/internal/store"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)

type testServer struct {
	addr     string
	registry *core.Registry
	server   *Server
	cancel   context.CancelFunc
	done     chan error
}

func startTestServer(t *testing.T, opts ...HandlerOption) *testServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	logger := log.Nop()
	registry := core.NewRegistry(logger)
	handler := NewHandler(registry, logger, opts...)
	srv := NewServer(ln.Addr().String(), registry, handler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		addr:     ln.Addr().String(),
		registry: registry,
		server:   srv,
		cancel:   cancel,
		done:     make(chan error, 1),
	}
	go func() {
		ts.done <- srv.Serve(ctx, ln)
	}()

	t.Cleanup(func() {
		cancel()
		<-ts.done
		_ = srv.Shutdown(2 * time.Second)
	})
	return ts
}

func (ts *testServer) waitCount(t *testing.T, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ts.registry.Count() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registry count = %d, want %d", ts.registry.Count(), want)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

type peer struct {
	conn   net.Conn
	reader *bufio.Reader
	name   string
}

// dialRaw connects and consumes the username prompt.
func dialRaw(t *testing.T, addr string) *peer {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	p := &peer{conn: conn, reader: bufio.NewReader(conn)}

	prompt := make([]byte, len(core.UsernamePrompt))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(p.reader, prompt); err != nil {
		t.Fatalf("read prompt: %v", err)
	}
	if string(prompt) != core.UsernamePrompt {
		t.Fatalf("unexpected prompt %q", prompt)
	}
	return p
}

// join completes the handshake and returns after the welcome line.
func join(t *testing.T, addr, name string) *peer {
	t.Helper()

	p := dialRaw(t, addr)
	p.send(t, name)
	welcome := p.nextLine(t)
	if !strings.HasSuffix(welcome, "Welcome to the chat, "+name+"!") {
		t.Fatalf("unexpected welcome %q", welcome)
	}
	p.name = name
	return p
}

func (p *peer) send(t *testing.T, text string) {
	t.Helper()

	if _, err := p.conn.Write([]byte(text)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// nextLine returns the next non-empty line, failing the test after two seconds.
func (p *peer) nextLine(t *testing.T) string {
	t.Helper()

	_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read line: %v", err)
		}
		if line = strings.TrimRight(line, "\n"); line != "" {
			return line
		}
	}
}

// expectSilence fails if any non-empty line arrives within d.
func (p *peer) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()

	_ = p.conn.SetReadDeadline(time.Now().Add(d))
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return
			}
			t.Fatalf("read while expecting silence: %v", err)
		}
		if strings.TrimSpace(line) != "" {
			t.Fatalf("unexpected line %q", line)
		}
	}
}

type recordingStore struct {
	mu     sync.Mutex
	joins  []store.SessionRecord
	leaves []string
}

func (s *recordingStore) RecordJoin(_ context.Context, rec store.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, rec)
	return nil
}

func (s *recordingStore) RecordLeave(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, id)
	return nil
}

func (s *recordingStore) RecentSessions(context.Context, int) ([]store.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.SessionRecord(nil), s.joins...), nil
}

func (s *recordingStore) Close() error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]events.Kind, 0, len(p.events))
	for _, ev := range p.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}
