package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Kashikuroni/api-yamdb/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

type staticAllower struct {
	allowed bool
	wait    time.Duration
	err     error
	calls   int
}

func (a *staticAllower) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	a.calls++
	return a.allowed, a.wait, a.err
}

func runLimited(t *testing.T, limiter Allower) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	r := gin.New()
	r.GET("/ping", RateLimit(limiter, nil), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowedPasses(t *testing.T) {
	limiter := &staticAllower{allowed: true}
	w := runLimited(t, limiter)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if limiter.calls != 1 {
		t.Fatalf("expected one limiter call, got %d", limiter.calls)
	}
}

func TestRateLimit_RejectedGets429WithRetryAfter(t *testing.T) {
	limiter := &staticAllower{allowed: false, wait: 2500 * time.Millisecond}
	w := runLimited(t, limiter)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"retry_after":3`) {
		t.Fatalf("expected retry_after 3 in body, got %s", body)
	}
}

func TestRateLimit_FailsOpenOnRedisError(t *testing.T) {
	limiter := &staticAllower{err: errors.New("redis down")}
	w := runLimited(t, limiter)

	if w.Code != http.StatusOK {
		t.Fatalf("limiter errors must not block requests, got %d", w.Code)
	}
}

func TestRateLimit_NilLimiterPasses(t *testing.T) {
	w := runLimited(t, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
