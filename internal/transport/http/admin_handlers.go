package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirearena-server/internal/core"
	"github.com/vovakirdan/wirearena-server/internal/store"
)

const (
	defaultSnapshotTimeout = 2 * time.Second
	defaultJournalLimit    = 50
	maxJournalLimit        = 500
)

// AdminHandlers serves the /admin routes.
type AdminHandlers struct {
	hub             Hub
	journal         store.Journal
	snapshotTimeout time.Duration
	log             *zerolog.Logger
}

// NewAdminHandlers creates the admin handlers.
func NewAdminHandlers(hub Hub, journal store.Journal, snapshotTimeout time.Duration, logger *zerolog.Logger) *AdminHandlers {
	if snapshotTimeout <= 0 {
		snapshotTimeout = defaultSnapshotTimeout
	}
	return &AdminHandlers{
		hub:             hub,
		journal:         journal,
		snapshotTimeout: snapshotTimeout,
		log:             logger,
	}
}

// AnnounceRequest represents the announce request body.
type AnnounceRequest struct {
	Text string `json:"text" binding:"required"`
}

// KickRequest is the optional kick request body.
type KickRequest struct {
	Reason string `json:"reason"`
}

// AcceptedResponse acknowledges an intent that was queued.
type AcceptedResponse struct {
	Status string `json:"status"`
}

// Metrics returns the hub counters.
// GET /admin/metrics
func (h *AdminHandlers) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Metrics())
}

// Sessions returns a snapshot of the room and every live session.
// GET /admin/sessions
func (h *AdminHandlers) Sessions(c *gin.Context) {
	reply := make(chan core.StateSnapshot, 1)
	if err := h.hub.Submit(core.Snapshot{Reply: reply}); err != nil {
		h.submitFailed(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.snapshotTimeout)
	defer cancel()

	select {
	case snap := <-reply:
		c.JSON(http.StatusOK, snap)
	case <-ctx.Done():
		h.log.Warn().Msg("snapshot timed out")
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "snapshot timed out"})
	}
}

// Kick removes a session.
// POST /admin/sessions/:id/kick
func (h *AdminHandlers) Kick(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session id"})
		return
	}

	var req KickRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "kicked by operator"
	}

	if err := h.hub.Submit(core.KickSession{SessionID: id, Reason: req.Reason}); err != nil {
		h.submitFailed(c, err)
		return
	}

	h.log.Info().Uint64("session_id", id).Str("reason", req.Reason).Msg("kick requested")
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: "queued"})
}

// Announce broadcasts a system chat line.
// POST /admin/announce
func (h *AdminHandlers) Announce(c *gin.Context) {
	var req AnnounceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid announce request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.hub.Submit(core.Announce{Text: req.Text}); err != nil {
		h.submitFailed(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: "queued"})
}

// Journal lists the most recent connection journal rows.
// GET /admin/journal?limit=N
func (h *AdminHandlers) Journal(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "journal is disabled"})
		return
	}

	limit := defaultJournalLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = min(n, maxJournalLimit)
	}

	records, err := h.journal.RecentSessions(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read journal")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if records == nil {
		records = []store.SessionRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *AdminHandlers) submitFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "server busy"})
	case errors.Is(err, core.ErrHubStopped):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "server shutting down"})
	default:
		h.log.Error().Err(err).Msg("failed to submit intent")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
