package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// newFrozenLimiter returns a limiter whose clock only moves when told to
func newFrozenLimiter(perMinute, burst int) (*RateLimiter, *time.Time) {
	rl := NewRateLimiterWithConfig(perMinute, burst)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_Take(t *testing.T) {
	rl, _ := newFrozenLimiter(10, 5)
	defer rl.Stop()

	userID := uuid.New()

	for i := 0; i < 5; i++ {
		d := rl.Take(userID)
		if !d.Allowed {
			t.Fatalf("Submission %d should be allowed", i+1)
		}
		if d.Remaining != 4-i {
			t.Errorf("Submission %d: expected %d remaining, got %d", i+1, 4-i, d.Remaining)
		}
	}

	d := rl.Take(userID)
	if d.Allowed {
		t.Fatal("Submission 6 should be refused")
	}
	// 10 per minute refills one token every 6s
	if d.RetryAfter < 5900*time.Millisecond || d.RetryAfter > 6*time.Second {
		t.Errorf("Expected retry after 6s, got %v", d.RetryAfter)
	}
}

func TestRateLimiter_RefusalConsumesNothing(t *testing.T) {
	rl, now := newFrozenLimiter(60, 1)
	defer rl.Stop()

	userID := uuid.New()
	if !rl.Take(userID).Allowed {
		t.Fatal("First submission should be allowed")
	}
	for i := 0; i < 3; i++ {
		if rl.Take(userID).Allowed {
			t.Fatal("Burst exhausted, submission should be refused")
		}
	}

	*now = now.Add(time.Second)
	if !rl.Take(userID).Allowed {
		t.Error("Refused attempts must not push the refill further out")
	}
}

func TestRateLimiter_DifferentUsers(t *testing.T) {
	rl, _ := newFrozenLimiter(10, 3)
	defer rl.Stop()

	user1 := uuid.New()
	user2 := uuid.New()

	for i := 0; i < 3; i++ {
		rl.Take(user1)
	}
	if rl.Take(user1).Allowed {
		t.Error("User1 should be rate limited")
	}

	for i := 0; i < 3; i++ {
		if !rl.Take(user2).Allowed {
			t.Errorf("User2 submission %d should be allowed", i+1)
		}
	}
}

func TestNewRateLimiterWithConfig_Defaults(t *testing.T) {
	rl := NewRateLimiterWithConfig(0, -1)
	defer rl.Stop()

	if rl.perMinute != DefaultSubmitsPerMinute || rl.burst != DefaultSubmitBurst {
		t.Errorf("Expected defaults, got %d/min burst %d", rl.perMinute, rl.burst)
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 3)
	rl.Stop()
	rl.Stop()
}

func TestRateLimitMiddleware_SkipsAnonymous(t *testing.T) {
	e := echo.New()
	rl, _ := newFrozenLimiter(1, 1)
	defer rl.Stop()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("Request %d: expected status 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_LimitsUser(t *testing.T) {
	e := echo.New()
	rl, _ := newFrozenLimiter(10, 2)
	defer rl.Stop()

	userID := uuid.New()
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}
	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		WithUserID(c, userID)
		if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		return rec
	}

	for i := 0; i < 2; i++ {
		rec := do()
		if rec.Code != http.StatusOK {
			t.Errorf("Request %d: expected status 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "10" {
			t.Errorf("Request %d: expected X-RateLimit-Limit 10, got %q", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "6" {
		t.Errorf("Expected Retry-After 6, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("Expected X-RateLimit-Remaining 0, got %q", got)
	}
}
