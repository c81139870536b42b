package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// RequireSession verifies the caller's session token and injects identity into request context.
// The token is taken from the Authorization header, falling back to the session cookie.
// It does not perform role checks; those belong to internal/rbac.
func RequireSession(m *Manager, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c, cookieName)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		claims, err := m.Verify(tok, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		id := claims.Identity()
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Set("user_id", id.UserID)

		c.Next()
	}
}

func bearerToken(c *gin.Context, cookieName string) string {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if strings.HasPrefix(raw, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	}
	if cookieName == "" {
		return ""
	}
	v, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}
