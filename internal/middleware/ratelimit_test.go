package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/authbridge/internal/model"
)

func newTestRateLimiter(t *testing.T, config RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(config)
	t.Cleanup(rl.Stop)
	return rl
}

func authedRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	ctx := ContextWithUser(req.Context(), &model.UserIdentity{ID: userID})
	return req.WithContext(ctx)
}

func TestGeneralMiddleware_WithinBurst_Allows(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    3,
		AuthRate:        rate.Limit(1),
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, authedRequest("user-1"))
		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Result().StatusCode)
		}
	}
}

func TestGeneralMiddleware_OverBurst_Returns429WithRetryAfter(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(0.5),
		GeneralBurst:    1,
		AuthRate:        rate.Limit(1),
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("user-1"))
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Result().StatusCode)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("user-1"))
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", w.Result().StatusCode)
	}
	if w.Result().Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestGeneralMiddleware_SeparateUsers_IndependentBuckets(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(0.1),
		GeneralBurst:    1,
		AuthRate:        rate.Limit(1),
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("user-a"))
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("user-a first request should pass")
	}

	// user-aのバケットは枯渇しているが、user-bは影響を受けない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, authedRequest("user-b"))
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("user-b should have independent bucket, got %d", w.Result().StatusCode)
	}

	if rl.GeneralLimiterCount() != 2 {
		t.Errorf("expected 2 limiter entries, got %d", rl.GeneralLimiterCount())
	}
}

func TestGeneralMiddleware_NoUser_Returns401(t *testing.T) {
	rl := newTestRateLimiter(t, DefaultRateLimiterConfig())

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/profile", nil))

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Result().StatusCode)
	}
}

func TestAuthMiddleware_RateLimit_KeyedByClientIP(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    1,
		AuthRate:        rate.Limit(0.1),
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})

	handler := rl.AuthMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req1 := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req1.RemoteAddr = "203.0.113.1:5000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req1)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Result().StatusCode)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req2.RemoteAddr = "203.0.113.1:5001"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req2)
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("same IP should be limited, got %d", w.Result().StatusCode)
	}

	// 別IPは独立
	req3 := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req3.RemoteAddr = "203.0.113.2:5000"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req3)
	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("different IP should have independent bucket, got %d", w.Result().StatusCode)
	}
}

func TestAuthMiddleware_RateLimit_UsesForwardedFor(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    1,
		AuthRate:        rate.Limit(0.1),
		AuthBurst:       1,
		CleanupInterval: time.Minute,
	})

	handler := rl.AuthMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234" // プロキシのアドレス
		req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Result().StatusCode != want {
			t.Errorf("request %d: status = %d, want %d", i, w.Result().StatusCode, want)
		}
	}
}

func TestCleanup_RemovesStaleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    1,
		AuthRate:        rate.Limit(1),
		AuthBurst:       1,
		CleanupInterval: time.Nanosecond,
	})

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), authedRequest("user-1"))

	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("expected 1 entry before cleanup")
	}

	time.Sleep(time.Millisecond)
	rl.cleanup()

	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("expected 0 entries after cleanup, got %d", rl.GeneralLimiterCount())
	}
}

func TestClientIP_Variants(t *testing.T) {
	cases := []struct {
		remoteAddr string
		xff        string
		want       string
	}{
		{"203.0.113.1:5000", "", "203.0.113.1"},
		{"10.0.0.1:80", "198.51.100.7", "198.51.100.7"},
		{"10.0.0.1:80", "198.51.100.7, 10.0.0.1", "198.51.100.7"},
		{"bad-addr", "", "bad-addr"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if tc.xff != "" {
			req.Header.Set("X-Forwarded-For", tc.xff)
		}
		if got := clientIP(req); got != tc.want {
			t.Errorf("clientIP(%q, xff=%q) = %q, want %q", tc.remoteAddr, tc.xff, got, tc.want)
		}
	}
}
