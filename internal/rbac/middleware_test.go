package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-dialer/internal/auth"

	"github.com/gin-gonic/gin"
)

func lookupFrom(m map[string]Subject) SubjectLookup {
	return func(ctx context.Context, userID string) (Subject, error) {
		s, ok := m[userID]
		if !ok {
			return Subject{}, ErrNoSubject
		}
		return s, nil
	}
}

func serve(t *testing.T, userID string, mw gin.HandlerFunc) int {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if userID != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), auth.Identity{UserID: userID}))
		}
		c.Next()
	}, mw, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireActiveProfile(t *testing.T) {
	lookup := lookupFrom(map[string]Subject{
		"active":   {Role: RoleUser, Active: true},
		"inactive": {Role: RoleUser, Active: false},
		"admin":    {Role: RoleSuperAdmin, Active: false},
	})

	cases := map[string]int{
		"":         http.StatusUnauthorized,
		"missing":  http.StatusNotFound,
		"inactive": http.StatusForbidden,
		"active":   http.StatusOK,
		"admin":    http.StatusOK,
	}
	for uid, want := range cases {
		if got := serve(t, uid, RequireActiveProfile(lookup)); got != want {
			t.Fatalf("user %q: expected %d, got %d", uid, want, got)
		}
	}
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	lookup := lookupFrom(map[string]Subject{
		"admin": {Role: RoleSuperAdmin, Active: true},
		"user":  {Role: RoleUser, Active: true},
	})
	if got := serve(t, "admin", RequireAnyRole(lookup)); got != http.StatusOK {
		t.Fatalf("expected 200 for super admin, got %d", got)
	}
	if got := serve(t, "user", RequireAnyRole(lookup)); got != http.StatusForbidden {
		t.Fatalf("expected 403 for user, got %d", got)
	}
	if got := serve(t, "user", RequireAnyRole(lookup, RoleUser)); got != http.StatusOK {
		t.Fatalf("expected 200 for allowed role, got %d", got)
	}
}

func TestCanAccessProfile(t *testing.T) {
	if !CanAccessProfile(RoleUser, "u1", "u1") {
		t.Fatalf("self access must be allowed")
	}
	if CanAccessProfile(RoleUser, "u1", "u2") {
		t.Fatalf("cross access must be denied for users")
	}
	if !CanAccessProfile(RoleSuperAdmin, "a", "u2") {
		t.Fatalf("super admin must reach any profile")
	}
}
