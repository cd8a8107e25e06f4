package mw

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter stores a rate limiter for each client key.
type IPRateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	r        rate.Limit
	b        int
}

// NewIPRateLimiter creates a new IPRateLimiter.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	if b <= 0 {
		b = 1
	}
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		r:        r,
		b:        b,
	}
}

// GetLimiter returns the rate limiter for a client, creating it on first use.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, exists := i.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(i.r, i.b)}
		i.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Prune drops limiters not used within maxIdle and returns how many remain.
func (i *IPRateLimiter) Prune(maxIdle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for ip, v := range i.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(i.visitors, ip)
		}
	}
	return len(i.visitors)
}

// ClientKey resolves the rate limit key: the first address in header when set
// and present, otherwise gin's ClientIP.
func ClientKey(header string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if header != "" {
			if v := c.GetHeader(header); v != "" {
				first, _, _ := strings.Cut(v, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}
		return c.ClientIP()
	}
}

// RateLimiter is a middleware for per-client rate limiting.
func RateLimiter(limiter *IPRateLimiter, key func(*gin.Context) string) gin.HandlerFunc {
	if key == nil {
		key = ClientKey("")
	}
	return func(c *gin.Context) {
		if !limiter.GetLimiter(key(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
