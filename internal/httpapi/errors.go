package httpapi

import (
	"errors"
	"net/http"

	"voice-dialer/internal/auth"
	"voice-dialer/internal/batches"
	"voice-dialer/internal/calls"
	"voice-dialer/internal/profiles"
	"voice-dialer/internal/telephony"
	"voice-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// writeError maps domain errors to HTTP responses of the form {"error": "..."}.
func writeError(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, profiles.ErrNotFound):
		return http.StatusNotFound, "profile not found"
	case errors.Is(err, calls.ErrNotFound):
		return http.StatusNotFound, "call not found"
	case errors.Is(err, batches.ErrNotFound):
		return http.StatusNotFound, "batch upload not found"
	case errors.Is(err, profiles.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, profiles.ErrAlreadyExists):
		return http.StatusConflict, "profile already exists"
	case errors.Is(err, batches.ErrAlreadyFinished):
		return http.StatusConflict, "batch upload already finished"
	case errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, batches.ErrInvalidArgument),
		errors.Is(err, batches.ErrUnsupportedFile):
		return http.StatusBadRequest, err.Error()
	}
	if ge, ok := telephony.AsGatewayError(err); ok {
		return http.StatusInternalServerError, ge.Error()
	}
	return http.StatusInternalServerError, "internal server error"
}
