// Package httpmiddleware holds gin middleware shared across the HTTP
// surface.
package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// sweepAfter is how long an idle client's bucket survives before a later
// request prunes it.
const sweepAfter = 10 * time.Minute

// RateLimiter enforces a per-client token bucket over the whole API. State
// is in-process only; the scan pipeline never passes through here, and a
// single-reader deployment runs a single api instance, so no shared store
// is needed.
type RateLimiter struct {
	burst     int
	perMinute int
	now       func() time.Time

	mu      sync.Mutex
	clients map[string]*clientBucket
	swept   time.Time
}

type clientBucket struct {
	tokens int
	seen   time.Time
}

// NewRateLimiter allows perMinute sustained requests per client with
// bursts up to burst.
func NewRateLimiter(burst, perMinute int) *RateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &RateLimiter{
		burst:     burst,
		perMinute: perMinute,
		now:       time.Now,
		clients:   make(map[string]*clientBucket),
	}
}

// Gin returns the middleware. Clients are keyed by IP.
func (rl *RateLimiter) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !rl.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"detail": "too many requests"})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, ok := rl.clients[key]
	if !ok {
		rl.clients[key] = &clientBucket{tokens: rl.burst - 1, seen: now}
		return true
	}
	// seen only advances when a refill is credited, so partial minutes
	// keep accruing across requests instead of being reset each time.
	refill := int(now.Sub(b.seen).Minutes() * float64(rl.perMinute))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > rl.burst {
			b.tokens = rl.burst
		}
		b.seen = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets idle long enough to have fully refilled anyway, so
// one-off clients (health checks, scan-test curls) don't accumulate.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.swept) < sweepAfter {
		return
	}
	for key, b := range rl.clients {
		if now.Sub(b.seen) > sweepAfter {
			delete(rl.clients, key)
		}
	}
	rl.swept = now
}
