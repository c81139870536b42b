package httpapi

import (
	"voice-dialer/internal/audit"
	"voice-dialer/internal/auth"
	"voice-dialer/internal/batches"
	"voice-dialer/internal/calls"
	"voice-dialer/internal/profiles"

	"github.com/gin-gonic/gin"
)

// Handlers holds HTTP handlers.
// Keep handlers thin: parse/validate -> call services -> map errors.
type Handlers struct {
	Profiles   *profiles.Service
	Calls      *calls.Service
	Batches    *batches.Service
	Dispatcher *batches.Dispatcher
	Audit      *audit.Service
}

// currentProfile resolves the caller's profile. Routes behind rbac.RequireActiveProfile
// already know it exists; the lookup gives the handlers its id.
func (h Handlers) currentProfile(c *gin.Context) (profiles.Profile, bool) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return profiles.Profile{}, false
	}
	p, err := h.Profiles.Get(c.Request.Context(), id.UserID)
	if err != nil {
		writeError(c, err)
		return profiles.Profile{}, false
	}
	return p, true
}
