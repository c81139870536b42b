package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-dialer/internal/config"

	"github.com/gin-gonic/gin"
)

func TestIssueAndVerify(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:   "secret",
		JWTIssuer:   "issuer",
		JWTAudience: "aud",
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, Identity{UserID: "user-1", Email: "a@b.c", FirstName: "Ada"}, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	id := claims.Identity()
	if id.UserID != "user-1" || id.Email != "a@b.c" || id.FirstName != "Ada" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})
	other, _ := NewManager(config.AuthConfig{JWTSecret: "other"})

	now := time.Now()
	tok, err := m.Issue(now, Identity{UserID: "u"}, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
	if _, err := other.Verify(tok, now); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestVerifyRejectsWrongIssuerAndAudience(t *testing.T) {
	now := time.Now()
	strict, _ := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "issuer", JWTAudience: "aud"})
	foreignIssuer, _ := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "elsewhere", JWTAudience: "aud"})
	foreignAudience, _ := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "issuer", JWTAudience: "other"})

	for name, m := range map[string]*Manager{"issuer": foreignIssuer, "audience": foreignAudience} {
		tok, err := m.Issue(now, Identity{UserID: "u"}, time.Minute)
		if err != nil {
			t.Fatalf("%s: issue: %v", name, err)
		}
		if _, err := strict.Verify(tok, now); err == nil {
			t.Fatalf("%s: expected token to be rejected", name)
		}
	}
}

func TestRequireSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret"})
	tok, _ := m.Issue(time.Now(), Identity{UserID: "u-1"}, time.Hour)

	r := gin.New()
	r.GET("/x", RequireSession(m, "sb-access-token"), func(c *gin.Context) {
		uid, err := UserID(c.Request.Context())
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, uid)
	})

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"garbage bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, http.StatusOK},
		{"session cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sb-access-token", Value: tok}) }, http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		tc.setup(req)
		r.ServeHTTP(w, req)
		if w.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, w.Code)
		}
		if tc.status == http.StatusOK && w.Body.String() != "u-1" {
			t.Fatalf("%s: unexpected body %q", tc.name, w.Body.String())
		}
	}
}
