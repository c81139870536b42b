package httpapi

import (
	"fmt"
	"net/http"

	"voice-dialer/internal/audit"
	"voice-dialer/internal/auth"
	"voice-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequeueBatch serves POST /admin/batches/:id/requeue.
func (h Handlers) RequeueBatch(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	batchID := c.Param("id")
	if err := h.Dispatcher.Requeue(c.Request.Context(), batchID); err != nil {
		writeError(c, err)
		return
	}
	if err := h.Audit.LogAdminAction(c.Request.Context(), audit.EventBatchRequeued, id.UserID, c.GetString("role"), batchID, "batch requeued"); err != nil {
		logger.FromGin(c).Warn("audit append failed", "batch_id", batchID, "err", err)
	}
	c.JSON(http.StatusAccepted, gin.H{"batchUploadId": batchID, "requeued": true})
}

// SweepBatches serves POST /admin/batches/sweep.
func (h Handlers) SweepBatches(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	ids, err := h.Dispatcher.Sweep(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	msg := fmt.Sprintf("reconciliation sweep requeued %d batches", len(ids))
	if err := h.Audit.LogAdminAction(c.Request.Context(), audit.EventAdminAction, id.UserID, c.GetString("role"), "", msg); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"requeued": ids})
}
