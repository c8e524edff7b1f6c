package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"tradegate.io/server/internal/api/middleware"
	"tradegate.io/server/models"
)

// readinessTimeout bounds the store ping.
const readinessTimeout = 2 * time.Second

// Pinger checks that the lease store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
//
// This handler provides liveness, readiness, and active status checks
// for load balancer health monitoring. /health/active lets a balancer
// route traffic to whichever host currently holds the lease.
type HealthHandler struct {
	store  Pinger
	view   middleware.LeaseView
	hostID string
}

// NewHealthHandler creates a new health check handler.
//
// Parameters:
//   - store: Lease store for readiness checks (may be nil)
//   - view: Lease view of the HA manager
//   - hostID: This host's identifier
func NewHealthHandler(store Pinger, view middleware.LeaseView, hostID string) *HealthHandler {
	return &HealthHandler{
		store:  store,
		view:   view,
		hostID: hostID,
	}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status string `json:"status"`
	HostID string `json:"host_id"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status     string `json:"status"`
	HostID     string `json:"host_id"`
	LeaseStore string `json:"lease_store"`
}

// ActiveResponse represents the active status response.
type ActiveResponse struct {
	IsActive    bool            `json:"is_active"`
	HostID      string          `json:"host_id"`
	HostKind    models.HostKind `json:"host_kind"`
	OwnerHostID string          `json:"owner_host_id,omitempty"`
}

// Liveness handles GET /health/live.
//
// Response: 200 OK while the process serves HTTP.
func (h *HealthHandler) Liveness(c *gin.Context) {
	respondSuccess(c, http.StatusOK, LivenessResponse{
		Status: "ok",
		HostID: h.hostID,
	})
}

// Readiness handles GET /health/ready.
//
// Returns:
//   - 200 OK if the lease store answers
//   - 503 Service Unavailable otherwise
func (h *HealthHandler) Readiness(c *gin.Context) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		if err := h.store.Ping(ctx); err != nil {
			middleware.RespondError(c, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err))
			return
		}
	}

	respondSuccess(c, http.StatusOK, ReadinessResponse{
		Status:     "ready",
		HostID:     h.hostID,
		LeaseStore: "connected",
	})
}

// Active handles GET /health/active.
//
// Returns:
//   - 200 OK when this host is active
//   - 503 Service Unavailable when passive, with the owner in X-Tradegate-Active-Owner
func (h *HealthHandler) Active(c *gin.Context) {
	snap := h.view.Snapshot()
	resp := ActiveResponse{
		IsActive:    h.view.Mode() == models.ModeActive,
		HostID:      h.hostID,
		HostKind:    snap.LocalHostKind,
		OwnerHostID: snap.OwnerHostID,
	}

	if !resp.IsActive {
		if snap.OwnerHostID != "" {
			c.Header(middleware.HeaderActiveOwner, snap.OwnerHostID)
		}
		c.JSON(http.StatusServiceUnavailable, SuccessResponse{Data: resp})
		return
	}

	respondSuccess(c, http.StatusOK, resp)
}
