package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/log"
	"github.com/vovakirdan/linechat/internal/transport/tcp"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) waitFor(t *testing.T, substr string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), substr) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("output never contained %q; got %q", substr, b.String())
}

func startChatServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	logger := log.Nop()
	registry := core.NewRegistry(logger)
	srv := tcp.NewServer(ln.Addr().String(), registry, tcp.NewHandler(registry, logger), logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = srv.Shutdown(2 * time.Second)
	})
	return ln.Addr().String()
}

// scriptedServer accepts a single connection and hands it to script.
func scriptedServer(t *testing.T, script func(conn net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}()
	return ln.Addr().String()
}

type testClient struct {
	*Client
	in  *io.PipeWriter
	out *syncBuffer
	err chan error
}

func dialTestClient(t *testing.T, addr string) *testClient {
	t.Helper()

	pr, pw := io.Pipe()
	out := &syncBuffer{}
	c, err := Dial(context.Background(), addr, Options{In: pr, Out: out})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		pw.Close()
		c.conn.Close()
	})
	return &testClient{Client: c, in: pw, out: out, err: make(chan error, 1)}
}

func (tc *testClient) typeLine(t *testing.T, line string) {
	t.Helper()

	if _, err := io.WriteString(tc.in, line+"\n"); err != nil {
		t.Fatalf("type line: %v", err)
	}
}

func (tc *testClient) handshake(t *testing.T, name string) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	type result struct {
		welcome string
		err     error
	}
	res := make(chan result, 1)
	go func() {
		w, err := tc.Handshake(ctx)
		res <- result{w, err}
	}()
	tc.typeLine(t, name)

	r := <-res
	if r.err != nil {
		t.Fatalf("handshake: %v", r.err)
	}
	return r.welcome
}

func (tc *testClient) start() {
	go func() {
		tc.err <- tc.Run(context.Background())
	}()
}

func (tc *testClient) wait(t *testing.T) error {
	t.Helper()

	select {
	case err := <-tc.err:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("client did not stop")
		return nil
	}
}
