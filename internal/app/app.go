package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/core"
	"github.com/vovakirdan/linechat/internal/events"
	"github.com/vovakirdan/linechat/internal/store"
	"github.com/vovakirdan/linechat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/linechat/internal/transport/http"
	"github.com/vovakirdan/linechat/internal/transport/tcp"
)

// App wires together core and transport layers.
type App struct {
	chat            *tcp.Server
	status          *stdhttp.Server
	shutdownTimeout time.Duration
	registry        *core.Registry
	store           store.SessionStore
	events          events.Publisher
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		registry:        core.NewRegistry(logger),
		events:          events.Nop{},
		log:             logger,
	}

	opts := []tcp.HandlerOption{
		tcp.WithReadBufferSize(cfg.ReadBufferSize),
		tcp.WithRateLimit(cfg.MaxMessagesPerMinute),
	}

	if cfg.DatabasePath != "" {
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.store = st
		opts = append(opts, tcp.WithAudit(st))
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("session audit enabled")
	}

	if cfg.NATSURL != "" {
		pub, err := events.NewNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init event feed: %w", err)
		}
		a.events = pub
		opts = append(opts, tcp.WithEvents(pub))
		logger.Info().Str("url", cfg.NATSURL).Str("subject", cfg.NATSSubject).Msg("event feed enabled")
	}

	handler := tcp.NewHandler(a.registry, logger, opts...)
	a.chat = tcp.NewServer(cfg.Addr, a.registry, handler, logger)

	if cfg.StatusAddr != "" {
		a.status = transporthttp.NewServer(cfg.StatusAddr, a.registry, a.store, logger)
	}

	return a, nil
}

// Registry exposes the live session set.
func (a *App) Registry() *core.Registry {
	return a.registry
}

// Run starts the chat listener (and the status server when configured) and blocks
// until context cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chatErr := make(chan error, 1)
	go func() {
		chatErr <- a.chat.ListenAndServe(ctx)
	}()

	statusErr := make(chan error, 1)
	if a.status != nil {
		go func() {
			a.log.Info().Str("addr", a.status.Addr).Msg("status server listening")
			if err := a.status.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				statusErr <- err
				return
			}
			statusErr <- nil
		}()
	}

	var runErr error
	select {
	case runErr = <-chatErr:
		cancel()
	case err := <-statusErr:
		if err != nil {
			runErr = fmt.Errorf("status server: %w", err)
		}
		cancel()
		<-chatErr
	case <-ctx.Done():
		<-chatErr
	}

	a.log.Info().Int("sessions", a.registry.Count()).Msg("shutting down chat server")
	if err := a.chat.Shutdown(a.shutdownTimeout); err != nil {
		a.log.Warn().Err(err).Msg("chat handlers still running")
	}

	if a.status != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancelShutdown()
		if err := a.status.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("failed to stop status server")
		}
	}

	a.cleanup()
	return runErr
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.events != nil {
		if err := a.events.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close event feed")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
