package middleware

import (
	"github.com/gin-gonic/gin"
	"tradegate.io/server/models"
)

const (
	// HeaderActiveOwner names the host currently holding the lease.
	HeaderActiveOwner = "X-Tradegate-Active-Owner"

	// HeaderMode is this host's mode.
	HeaderMode = "X-Tradegate-Mode"
)

// LeaseView exposes this host's mode and cached lease.
type LeaseView interface {
	Mode() models.Mode
	Snapshot() models.LeaseSnapshot
}

// ActiveOwnerHeaders stamps every response with this host's mode and the
// owner of the lease, so clients and load balancers can find the active host.
//
// Parameters:
//   - view: Lease view of the HA manager
//
// Returns:
//   - Gin middleware handler function
func ActiveOwnerHeaders(view LeaseView) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(HeaderMode, string(view.Mode()))
		if owner := view.Snapshot().OwnerHostID; owner != "" {
			c.Header(HeaderActiveOwner, owner)
		}
		c.Next()
	}
}
