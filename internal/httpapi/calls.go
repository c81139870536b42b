package httpapi

import (
	"net/http"

	"voice-dialer/internal/calls"

	"github.com/gin-gonic/gin"
)

type placeCallRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required,phone"`
	AssistantID string `json:"assistantId" binding:"required"`
}

// ListCalls serves GET /calls.
func (h Handlers) ListCalls(c *gin.Context) {
	p, ok := h.currentProfile(c)
	if !ok {
		return
	}
	page := parsePage(c)
	list, total, err := h.Calls.List(c.Request.Context(), p.ID, page.limit(), page.offset())
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []calls.Call{}
	}
	c.JSON(http.StatusOK, gin.H{
		"calls":      list,
		"pagination": pagination(page, total, "totalCalls"),
	})
}

// PlaceCall serves POST /calls.
func (h Handlers) PlaceCall(c *gin.Context) {
	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": bindMessage(err)})
		return
	}
	p, ok := h.currentProfile(c)
	if !ok {
		return
	}
	call, err := h.Calls.Place(c.Request.Context(), p.ID, calls.PlaceRequest{
		PhoneNumber: req.PhoneNumber,
		AssistantID: req.AssistantID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

// GetCall serves GET /calls/:id.
func (h Handlers) GetCall(c *gin.Context) {
	p, ok := h.currentProfile(c)
	if !ok {
		return
	}
	call, err := h.Calls.Get(c.Request.Context(), p.ID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// CallSummary serves GET /calls/summary.
func (h Handlers) CallSummary(c *gin.Context) {
	p, ok := h.currentProfile(c)
	if !ok {
		return
	}
	sum, err := h.Calls.Summary(c.Request.Context(), p.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
