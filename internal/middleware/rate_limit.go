package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultSubmitsPerMinute = 30
	DefaultSubmitBurst      = 10

	limiterSweepInterval = 5 * time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

// Decision is the outcome of one admission check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter admits job submissions per user with a token bucket each
type RateLimiter struct {
	perMinute int
	burst     int
	every     rate.Limit

	mu      sync.Mutex
	buckets map[uuid.UUID]*bucket

	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiterWithConfig creates a limiter allowing perMinute submissions
// with bursts of up to burst. Non-positive values fall back to the defaults.
func NewRateLimiterWithConfig(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultSubmitsPerMinute
	}
	if burst <= 0 {
		burst = DefaultSubmitBurst
	}
	rl := &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		every:     rate.Every(time.Minute / time.Duration(perMinute)),
		buckets:   make(map[uuid.UUID]*bucket),
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
	go rl.sweepIdle()
	return rl
}

// Take consumes one token for userID when one is available. A refused
// request consumes nothing and reports how long until a token frees up.
func (r *RateLimiter) Take(userID uuid.UUID) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.every, r.burst)}
		r.buckets[userID] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{RetryAfter: delay}
	}
	remaining := int(math.Floor(b.limiter.TokensAt(now)))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}
}

// sweepIdle drops buckets of users who stopped submitting
func (r *RateLimiter) sweepIdle() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			cutoff := r.now().Add(-limiterIdleTTL)
			dropped := 0
			for userID, b := range r.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(r.buckets, userID)
					dropped++
				}
			}
			r.mu.Unlock()
			if dropped > 0 {
				log.Debug().Int("dropped", dropped).Msg("Swept idle submit limiters")
			}
		case <-r.stopCh:
			return
		}
	}
}

// Stop ends the idle sweep. Safe to call more than once.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// RateLimitMiddleware limits authenticated users. Requests without a
// resolved user pass through untouched.
func RateLimitMiddleware(rl *RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := GetUserID(c)
			if userID == uuid.Nil {
				return next(c)
			}

			d := rl.Take(userID)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				h.Set("Retry-After", strconv.Itoa(retryAfter))

				log.Warn().
					Str("user_id", userID.String()).
					Int("retry_after", retryAfter).
					Msg("Submit rate limit exceeded")
				return rateLimitedError(c, retryAfter)
			}
			return next(c)
		}
	}
}
