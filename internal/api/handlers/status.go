package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"tradegate.io/server/internal/api/middleware"
	"tradegate.io/server/models"
)

// FlagSource returns the current control flags.
type FlagSource interface {
	Snapshot() models.ControlFlags
}

// StatusHandler serves the status query interface.
type StatusHandler struct {
	view  middleware.LeaseView
	flags FlagSource
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(view middleware.LeaseView, flags FlagSource) *StatusHandler {
	return &StatusHandler{view: view, flags: flags}
}

// Status handles GET /api/v1/status.
//
// The lease part reports this host's mode together with the cached owner.
// It is read-only and never touches the lease store.
func (h *StatusHandler) Status(c *gin.Context) {
	snap := h.view.Snapshot()
	f := h.flags.Snapshot()

	c.JSON(http.StatusOK, models.StatusResponse{
		Lease: models.StatusLease{
			Mode:        h.view.Mode(),
			OwnerHostID: snap.OwnerHostID,
			HostKind:    snap.HostKind,
		},
		Control: models.StatusControl{
			PanicOn:      f.PanicOn,
			SignalsOn:    f.SignalsOn,
			ApproveOn:    f.ApproveOn,
			HolidayHalt:  f.HolidayHalt,
			WeekendOn:    f.WeekendOn,
			NewsFreezeOn: f.NewsFreezeOn,
		},
	})
}

// Lease handles GET /api/v1/lease with the full cached lease view.
func (h *StatusHandler) Lease(c *gin.Context) {
	respondSuccess(c, http.StatusOK, h.view.Snapshot())
}
