package telephony

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"voice-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

const headerVapiSecret = "X-Vapi-Secret"

// EventSink applies provider call events to stored calls.
type EventSink interface {
	ApplyProviderEvent(ctx context.Context, ev CallEvent) error
}

// VapiWebhookHandler converts the provider's server messages to internal events
// and delegates to the sink. No business logic here.
type VapiWebhookHandler struct {
	// Secret must match the X-Vapi-Secret header. Empty disables the check (local only).
	Secret string
	Sink   EventSink
}

func (h VapiWebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook sink not configured"})
		return
	}
	if h.Secret != "" {
		got := c.GetHeader(headerVapiSecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	ev, err := ParseVapiWebhook(c.Request)
	if errors.Is(err, ErrIgnoredMessage) {
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": ev.Type})
		return
	}
	if err != nil {
		log.Warn("vapi webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.Sink.ApplyProviderEvent(c.Request.Context(), ev); err != nil {
		// Unknown calls are acknowledged so the provider stops retrying.
		log.Warn("vapi webhook not applied", "external_id", ev.State.ExternalID, "type", ev.Type, "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
