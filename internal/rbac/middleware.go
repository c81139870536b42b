package rbac

import (
	"context"
	"errors"
	"net/http"

	"voice-dialer/internal/auth"

	"github.com/gin-gonic/gin"
)

// Subject is the authorization view of a profile.
type Subject struct {
	Role   string
	Active bool
}

// SubjectLookup resolves the role and active flag for a user id.
// Implementations return ErrNoSubject when the user has no profile yet.
type SubjectLookup func(ctx context.Context, userID string) (Subject, error)

var ErrNoSubject = errors.New("rbac: subject not found")

// RequireActiveProfile rejects callers whose profile is missing (404) or deactivated (403).
// Super admins pass even when deactivated so they cannot lock themselves out.
func RequireActiveProfile(lookup SubjectLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		s, err := lookup(c.Request.Context(), uid)
		if err != nil {
			if errors.Is(err, ErrNoSubject) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "profile not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "profile lookup failed"})
			return
		}
		if !s.Active && !IsSuperAdmin(s.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "profile inactive"})
			return
		}
		c.Set("role", s.Role)
		c.Next()
	}
}

// RequireAnyRole allows access if the caller's profile role is one of allowed.
// Super admins bypass the check.
func RequireAnyRole(lookup SubjectLookup, allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		s, err := lookup(c.Request.Context(), uid)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		if IsSuperAdmin(s.Role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[s.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
