package logger

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestFrom_FallsBackToDefault(t *testing.T) {
	if From(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger")
	}
	l := New("local", Options{})
	if From(With(context.Background(), l)) != l {
		t.Fatalf("expected stored logger")
	}
}

func TestMiddleware_PropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware(New("dev", Options{})))
	var fromReq *slog.Logger
	r.GET("/x", func(c *gin.Context) {
		fromReq = From(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "rid-1" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	if fromReq == nil || fromReq == slog.Default() {
		t.Fatalf("expected request-scoped logger in request context")
	}
}

func TestNew_WithRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	l := New("production", Options{File: path, MaxSizeMB: 1, MaxBackups: 1})
	l.Info("hello")
	if err := ShutdownFlush(context.Background(), time.Second); err != nil {
		t.Fatalf("flush: %v", err)
	}
}
