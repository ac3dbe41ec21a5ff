package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/core"
)

// ErrShutdownTimeout is returned when handlers outlive the shutdown deadline.
var ErrShutdownTimeout = errors.New("tcp: shutdown timed out")

// Server accepts chat connections and runs a Handler for each of them.
type Server struct {
	addr     string
	registry *core.Registry
	handler  *Handler
	log      *zerolog.Logger

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer builds a listener loop for addr.
func NewServer(addr string, registry *core.Registry, handler *Handler, logger *zerolog.Logger) *Server {
	return &Server{
		addr:     addr,
		registry: registry,
		handler:  handler,
		log:      logger,
		conns:    make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds the configured address and serves until ctx is cancelled.
// Go listeners set SO_REUSEADDR on Unix, so restarts do not trip over TIME_WAIT sockets.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled or Accept fails.
// Accept failures are fatal; cancellation is a clean stop and returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-stop:
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("chat server listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ln.Close()
			return fmt.Errorf("accept: %w", err)
		}

		s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("new connection")

		active := s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handler.Handle(conn)
		}()

		s.log.Info().Int("active", active).Msg("active connections")
	}
}

// Shutdown closes every accepted connection, including ones still in the handshake, and waits
// up to timeout for handlers to finish. Call it after Serve has returned.
func (s *Server) Shutdown(timeout time.Duration) error {
	// Conns close first: a broadcast stuck on a peer that stopped reading holds the registry lock CloseAll needs.
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.registry.CloseAll()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

// track adds or removes conn and returns the number of accepted connections still open.
func (s *Server) track(conn net.Conn, add bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
	return len(s.conns)
}
