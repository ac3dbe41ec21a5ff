package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/store"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// SessionLister exposes the live registry view. *core.Registry satisfies it.
type SessionLister interface {
	Count() int
	Names() []string
}

// StatusHandlers provides read-only operator endpoints.
type StatusHandlers struct {
	sessions SessionLister
	store    store.SessionStore
	log      *zerolog.Logger
}

// NewStatusHandlers creates a new status handlers instance.
func NewStatusHandlers(sessions SessionLister, st store.SessionStore, logger *zerolog.Logger) *StatusHandlers {
	return &StatusHandlers{
		sessions: sessions,
		store:    st,
		log:      logger,
	}
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatsResponse describes the live chat.
type StatsResponse struct {
	Sessions int      `json:"sessions"`
	Users    []string `json:"users"`
}

// SessionResponse is one audit row.
type SessionResponse struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	RemoteAddr string  `json:"remote_addr"`
	JoinedAt   string  `json:"joined_at"`
	LeftAt     *string `json:"left_at,omitempty"`
}

// Health answers liveness probes.
// GET /health
func (h *StatusHandlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Stats returns the number and names of connected users.
// GET /stats
func (h *StatusHandlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{
		Sessions: h.sessions.Count(),
		Users:    h.sessions.Names(),
	})
}

// RecentSessions lists audit records, newest first.
// GET /sessions/recent?limit=N
func (h *StatusHandlers) RecentSessions(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session audit is disabled"})
		return
	}

	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.store.RecentSessions(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list recent sessions")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]SessionResponse, 0, len(records))
	for _, rec := range records {
		item := SessionResponse{
			ID:         rec.ID,
			Username:   rec.Username,
			RemoteAddr: rec.RemoteAddr,
			JoinedAt:   rec.JoinedAt.Format(time.RFC3339),
		}
		if rec.LeftAt != nil {
			left := rec.LeftAt.Format(time.RFC3339)
			item.LeftAt = &left
		}
		resp = append(resp, item)
	}
	c.JSON(http.StatusOK, resp)
}
