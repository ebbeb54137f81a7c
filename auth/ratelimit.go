package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	cleanupInterval = 5 * time.Minute
	entryTTL        = 10 * time.Minute
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
	now         func() time.Time
}

func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters:    make(map[string]*limiterEntry),
		limit:       rate.Limit(float64(perMinute) / 60),
		burst:       burst,
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > cleanupInterval {
		for k, e := range rl.limiters {
			if now.Sub(e.lastAccess) > entryTTL {
				delete(rl.limiters, k)
			}
		}
		rl.lastCleanup = now
	}

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = now

	if entry.limiter.AllowN(now, 1) {
		return true, 0
	}

	retryAfter := time.Minute
	if rl.limit > 0 {
		retryAfter = time.Duration(float64(time.Second) / float64(rl.limit))
	}
	return false, retryAfter
}

// Handler rejects clients that exceed the limit with 429.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := rl.allow(c.ClientIP())
		if !allowed {
			secs := int(retryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, retry after " + strconv.Itoa(secs) + " seconds",
			})
			return
		}
		c.Next()
	}
}
