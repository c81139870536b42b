package main

import (
	"context"
	"net/http"

	"voice-dialer/internal/auth"
	"voice-dialer/internal/httpapi"
	"voice-dialer/internal/metrics"
	"voice-dialer/internal/rbac"
	"voice-dialer/internal/telephony"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	auth          *auth.Manager
	sessionCookie string
	webhookSecret string
	metrics       *metrics.Metrics
	ready         func(ctx context.Context) error
	handlers      httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := d.ready(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	// Provider webhooks (public, shared-secret protected).
	{
		wh := telephony.VapiWebhookHandler{Secret: d.webhookSecret, Sink: h.Calls}
		r.POST("/webhooks/vapi", wh.Handle)
	}

	// protected
	authed := r.Group("/")
	authed.Use(auth.RequireSession(d.auth, d.sessionCookie))
	lookup := rbac.SubjectLookup(h.Profiles.Subject)

	// PROFILE routes. No active-profile check: these create and repair profiles.
	{
		authed.GET("/profile", h.GetProfile)
		authed.PUT("/profile", h.UpdateProfile)
		authed.POST("/profile", h.CreateProfile)
		authed.GET("/profile/:userId", h.GetProfileFor)
		authed.PATCH("/profile/:userId", h.PatchProfileFor)
	}

	// CALLS routes
	callsGroup := authed.Group("/calls")
	callsGroup.Use(rbac.RequireActiveProfile(lookup))
	{
		callsGroup.GET("", h.ListCalls)
		callsGroup.POST("", h.PlaceCall)
		callsGroup.GET("/summary", h.CallSummary)

		callsGroup.GET("/batch", h.ListBatches)
		callsGroup.POST("/batch", h.SubmitBatch)
		callsGroup.POST("/batch/upload", h.UploadBatch)
		callsGroup.GET("/batch/template", h.BatchTemplate)
		callsGroup.GET("/batch/:id", h.GetBatch)

		callsGroup.GET("/:id", h.GetCall)
	}

	// ADMIN routes
	admin := authed.Group("/admin")
	admin.Use(rbac.RequireActiveProfile(lookup))
	admin.Use(rbac.RequireAnyRole(lookup, rbac.RoleSuperAdmin))
	{
		admin.POST("/batches/:id/requeue", h.RequeueBatch)
		admin.POST("/batches/sweep", h.SweepBatches)
	}
}
