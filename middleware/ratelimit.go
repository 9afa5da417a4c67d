package middleware

import (
	"context"
	"log"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"socialfeed/apperr"

	"github.com/gin-gonic/gin"
)

// Decision is a limiter verdict for one request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// IPRateLimiter is a per-process sliding window limiter. It is the fallback
// when no Redis is configured, so limits are per instance.
type IPRateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time

	lastSweep time.Time
}

func NewIPRateLimiter(limit int, window time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

func (rl *IPRateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)
	if now.Sub(rl.lastSweep) >= rl.window {
		rl.sweep(cutoff)
		rl.lastSweep = now
	}

	requests := inWindow(rl.requests[key], cutoff)

	if len(requests) >= rl.limit {
		rl.requests[key] = requests
		return Decision{Allowed: false, RetryAfter: requests[0].Sub(cutoff)}, nil
	}

	requests = append(requests, now)
	rl.requests[key] = requests
	return Decision{Allowed: true, Remaining: rl.limit - len(requests)}, nil
}

// sweep forgets keys with no request inside the window.
func (rl *IPRateLimiter) sweep(cutoff time.Time) {
	for key, requests := range rl.requests {
		if len(inWindow(requests, cutoff)) == 0 {
			delete(rl.requests, key)
		}
	}
}

func inWindow(requests []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(requests); i++ {
		if requests[i].After(cutoff) {
			break
		}
	}
	return requests[i:]
}

// RateLimit limits requests per client IP and route. Limiter errors let the
// request through.
func RateLimit(limiter Limiter, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP() + ":route:" + c.Request.Method + " " + c.FullPath()

		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Printf("[RateLimit] limiter error for key=%s: %v", key, err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 0 {
				secs = 0
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
				"code":  apperr.CodeRateLimited,
			})
			return
		}
		c.Next()
	}
}
