package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimit_CustomKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimit("sender", 0.001, 1, func(c *gin.Context) string { return c.GetHeader("X-Sender") }))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(sender string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Sender", sender)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	if w := send("a"); w.Code != http.StatusOK {
		t.Fatalf("first request from a = %d, want 200", w.Code)
	}
	w := send("a")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request from a = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
	if w := send("b"); w.Code != http.StatusOK {
		t.Errorf("first request from b = %d, want 200", w.Code)
	}
}

func TestBucketSet_DropsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	s := newBucketSet(10, 10)
	s.now = func() time.Time { return now }

	s.reserve("10.0.0.1")
	s.reserve("10.0.0.2")
	if got := s.size(); got != 2 {
		t.Fatalf("size = %d, want 2", got)
	}

	now = now.Add(s.idleAfter + time.Second)
	s.reserve("10.0.0.3")

	if got := s.size(); got != 1 {
		t.Errorf("size after idle sweep = %d, want 1", got)
	}
}
