package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type keyLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ClientIP charges requests to the caller's address.
func ClientIP(c *gin.Context) string { return c.ClientIP() }

// ParamOrIP charges requests to a route parameter, such as the character id,
// falling back to the caller's address when the route has none.
func ParamOrIP(name string) KeyFunc {
	return func(c *gin.Context) string {
		if v := c.Param(name); v != "" {
			return name + ":" + v
		}
		return c.ClientIP()
	}
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	return RateLimitBy(r, b, ClientIP)
}

// RateLimitBy is RateLimit with a custom bucket key.
func RateLimitBy(r rate.Limit, b int, key KeyFunc) gin.HandlerFunc {
	limiters := &sync.Map{}

	// Drop buckets idle for 10 minutes.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-10 * time.Minute)
			limiters.Range(func(k, v interface{}) bool {
				kl := v.(*keyLimiter)
				kl.mu.Lock()
				stale := kl.lastSeen.Before(cutoff)
				kl.mu.Unlock()
				if stale {
					limiters.Delete(k)
				}
				return true
			})
		}
	}()

	allow := func(k string) bool {
		v, _ := limiters.LoadOrStore(k, &keyLimiter{limiter: rate.NewLimiter(r, b)})
		kl := v.(*keyLimiter)
		kl.mu.Lock()
		kl.lastSeen = time.Now()
		kl.mu.Unlock()
		return kl.limiter.Allow()
	}

	return func(c *gin.Context) {
		if !allow(key(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
