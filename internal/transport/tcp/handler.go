package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/events"
	"github.com/vovakirdan/linechat/internal/store"
)

// ErrInvalidUTF8 marks a read whose bytes are not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid utf-8 data")

const (
	defaultReadBufferSize = 1024
	auditTimeout          = 2 * time.Second
)

// Handler runs the per-connection session: handshake, relay loop and teardown.
type Handler struct {
	registry  *core.Registry
	log       *zerolog.Logger
	now       func() time.Time
	bufSize   int
	maxPerMin int
	audit     store.SessionStore
	events    events.Publisher
}

// HandlerOption customizes a Handler.
type HandlerOption func(h *Handler)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithReadBufferSize sets the size of a single read. Non-positive values are ignored.
func WithReadBufferSize(size int) HandlerOption {
	return func(h *Handler) {
		if size > 0 {
			h.bufSize = size
		}
	}
}

// WithRateLimit caps relayed messages per session per minute. Zero disables the cap.
func WithRateLimit(perMinute int) HandlerOption {
	return func(h *Handler) {
		h.maxPerMin = perMinute
	}
}

// WithAudit records session joins and departures in st.
func WithAudit(st store.SessionStore) HandlerOption {
	return func(h *Handler) {
		h.audit = st
	}
}

// WithEvents publishes session activity through p.
func WithEvents(p events.Publisher) HandlerOption {
	return func(h *Handler) {
		if p != nil {
			h.events = p
		}
	}
}

// NewHandler builds a session handler bound to registry.
func NewHandler(registry *core.Registry, logger *zerolog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry: registry,
		log:      logger,
		now:      time.Now,
		bufSize:  defaultReadBufferSize,
		events:   events.Nop{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Handle serves conn until the peer disconnects. The connection is always closed on return.
func (h *Handler) Handle(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	logger := h.log.With().Str("remote", remote).Logger()

	session, err := h.handshake(conn)
	if err != nil {
		logger.Warn().Err(err).Msg("handshake failed")
		_ = conn.Close()
		return
	}

	logger = logger.With().Str("session_id", session.ID).Str("user", session.Name).Logger()
	defer h.teardown(session, &logger)

	h.join(session, &logger)
	h.relayLoop(conn, session, &logger)
}

func (h *Handler) handshake(conn net.Conn) (*core.Session, error) {
	if _, err := io.WriteString(conn, core.UsernamePrompt); err != nil {
		return nil, fmt.Errorf("send prompt: %w", err)
	}

	buf := make([]byte, h.bufSize)
	n, err := conn.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, fmt.Errorf("read username: %w", err)
	}
	if !utf8.Valid(buf[:n]) {
		return nil, fmt.Errorf("read username: %w", ErrInvalidUTF8)
	}

	name := strings.TrimSpace(string(buf[:n]))
	if name == "" {
		name = core.GuestName(conn.RemoteAddr())
	}
	return core.NewSession(conn, name, conn.RemoteAddr().String(), h.now()), nil
}

func (h *Handler) join(session *core.Session, logger *zerolog.Logger) {
	h.registry.Register(session)
	logger.Info().Msg("user connected")

	h.registry.Broadcast(core.JoinNotice(h.now(), session.Name), session)
	if err := session.Send(core.WelcomeNotice(h.now(), session.Name)); err != nil {
		logger.Warn().Err(err).Msg("send welcome")
	}

	if h.audit != nil {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := h.audit.RecordJoin(ctx, store.SessionRecord{
			ID:         session.ID,
			Username:   session.Name,
			RemoteAddr: session.Remote,
			JoinedAt:   session.JoinedAt,
		}); err != nil {
			logger.Warn().Err(err).Msg("audit join")
		}
	}
	h.publish(events.Event{Kind: events.KindJoined, SessionID: session.ID, User: session.Name, At: session.JoinedAt}, logger)
}

func (h *Handler) relayLoop(conn net.Conn, session *core.Session, logger *zerolog.Logger) {
	limiter := newRateLimiter(h.maxPerMin, h.now)
	buf := make([]byte, h.bufSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			h.relay(session, buf[:n], limiter, logger)
		}
		if err != nil {
			logDisconnect(logger, err)
			return
		}
	}
}

func (h *Handler) relay(session *core.Session, raw []byte, limiter *rateLimiter, logger *zerolog.Logger) {
	if !utf8.Valid(raw) {
		logger.Warn().Err(ErrInvalidUTF8).Int("bytes", len(raw)).Msg("dropping message")
		return
	}

	body := strings.TrimSpace(string(raw))
	if body == "" {
		return
	}
	if !limiter.allow() {
		logger.Warn().Int("limit_per_minute", h.maxPerMin).Msg("rate limit exceeded, dropping message")
		return
	}

	at := h.now()
	line := core.RelayLine(at, session.Name, body)
	logger.Info().Msg(line)
	h.registry.Broadcast(line, session)

	h.publish(events.Event{Kind: events.KindMessage, SessionID: session.ID, User: session.Name, Text: body, At: at}, logger)
}

// teardown runs once per registered session, whatever ended the relay loop.
func (h *Handler) teardown(session *core.Session, logger *zerolog.Logger) {
	if h.registry.Deregister(session) {
		at := h.now()
		h.registry.Broadcast(core.DepartureNotice(at, session.Name), nil)
		logger.Info().Int("active", h.registry.Count()).Msg("user disconnected")

		if h.audit != nil {
			ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
			if err := h.audit.RecordLeave(ctx, session.ID, at); err != nil {
				logger.Warn().Err(err).Msg("audit leave")
			}
			cancel()
		}
		h.publish(events.Event{Kind: events.KindLeft, SessionID: session.ID, User: session.Name, At: at}, logger)
	}

	if err := session.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debug().Err(err).Msg("close connection")
	}
}

func (h *Handler) publish(ev events.Event, logger *zerolog.Logger) {
	if err := h.events.Publish(ev); err != nil {
		logger.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("publish event")
	}
}

func logDisconnect(logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.Info().Msg("peer closed connection")
	case errors.Is(err, net.ErrClosed):
		logger.Debug().Msg("connection closed locally")
	case errors.Is(err, syscall.ECONNRESET):
		logger.Warn().Msg("connection reset")
	case errors.Is(err, syscall.ECONNABORTED):
		logger.Warn().Msg("connection aborted")
	default:
		logger.Error().Err(err).Msg("socket error")
	}
}
