package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"tradegate.io/server/internal/api/middleware"
	"tradegate.io/server/internal/intake"
	"tradegate.io/server/internal/service"
	"tradegate.io/server/models"
)

// SignalProcessor runs a parsed signal through gate, dedup and journal.
type SignalProcessor interface {
	Process(ctx context.Context, sig models.Signal) models.SignalResponse
}

// JournalReader lists recent gate outcomes.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]*service.JournalEntry, error)
}

// SignalHandler handles signal intake endpoints.
type SignalHandler struct {
	pipeline SignalProcessor
	journal  JournalReader

	// For testing - allow overriding time functions
	now func() time.Time
}

// NewSignalHandler creates a new signal handler. journal may be nil.
func NewSignalHandler(pipeline SignalProcessor, journal JournalReader) *SignalHandler {
	return &SignalHandler{
		pipeline: pipeline,
		journal:  journal,
		now:      time.Now,
	}
}

// Receive handles POST /api/v1/signals.
//
// The body has already been read and verified by the signature middleware.
// Blocked signals are answered 200 with accepted=false and a reason; only
// unreadable payloads produce 4xx.
//
// Response: 200 OK with {"accepted": bool, "reason": string|null, ...}
func (h *SignalHandler) Receive(c *gin.Context) {
	body := middleware.GetRawBody(c)
	if body == nil {
		raw, err := c.GetRawData()
		if err != nil {
			middleware.RespondError(c, models.ErrInvalidRequest)
			return
		}
		body = raw
	}

	sig, err := intake.Parse(body, h.now())
	if err != nil {
		middleware.GetLogger(c).Warn("unparseable signal")
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.pipeline.Process(c.Request.Context(), sig))
}

// Recent handles GET /api/v1/signals/recent?limit=N.
func (h *SignalHandler) Recent(c *gin.Context) {
	if h.journal == nil {
		middleware.RespondError(c, fmt.Errorf("%w: signal journal disabled", models.ErrNotFound))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			middleware.RespondError(c, models.ErrInvalidRequest)
			return
		}
		limit = n
	}

	entries, err := h.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		middleware.GetLogger(c).Error("failed to list journal")
		middleware.RespondError(c, fmt.Errorf("%w: %v", models.ErrServiceUnavailable, err))
		return
	}

	respondSuccess(c, http.StatusOK, entries)
}
