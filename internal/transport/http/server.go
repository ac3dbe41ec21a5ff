package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/store"
)

const readHeaderTimeout = 5 * time.Second

// NewServer builds the operator status server. st may be nil when auditing is off.
func NewServer(addr string, sessions SessionLister, st store.SessionStore, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	h := NewStatusHandlers(sessions, st, logger)
	router.GET("/health", h.Health)
	router.GET("/stats", h.Stats)
	router.GET("/sessions/recent", h.RecentSessions)

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
