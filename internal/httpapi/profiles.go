package httpapi

import (
	"net/http"

	"voice-dialer/internal/auth"
	"voice-dialer/internal/profiles"

	"github.com/gin-gonic/gin"
)

// GetProfile serves GET /profile and creates the profile on first access.
func (h Handlers) GetProfile(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := h.Profiles.GetOrCreate(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProfile serves PUT /profile.
func (h Handlers) UpdateProfile(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	var patch profiles.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindMessage(err)})
		return
	}
	p, err := h.Profiles.UpdateOwn(c.Request.Context(), id, patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateProfile serves POST /profile.
func (h Handlers) CreateProfile(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	var patch profiles.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindMessage(err)})
		return
	}
	// Activation is not self-service.
	patch.Active = nil
	p, err := h.Profiles.Create(c.Request.Context(), id.UserID, patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// GetProfileFor serves GET /profile/:userId.
func (h Handlers) GetProfileFor(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := h.Profiles.GetFor(c.Request.Context(), id, c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// PatchProfileFor serves PATCH /profile/:userId.
func (h Handlers) PatchProfileFor(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	var patch profiles.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindMessage(err)})
		return
	}
	p, err := h.Profiles.UpdateFor(c.Request.Context(), id, c.Param("userId"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}
