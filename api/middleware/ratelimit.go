package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pagehealth/config"
	"github.com/use-agent/pagehealth/models"
	"golang.org/x/time/rate"
)

// limiters holds one token bucket per caller identity.
type limiters struct {
	cfg config.RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiters(cfg config.RateLimitConfig) *limiters {
	return &limiters{cfg: cfg, buckets: make(map[string]*bucket)}
}

func (l *limiters) get(identity string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[identity]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.buckets[identity] = b
	}
	b.lastSeen = now
	return b.limiter
}

// evict drops buckets idle since before cutoff and returns how many remain.
func (l *limiters) evict(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, id)
		}
	}
	return len(l.buckets)
}

// sweep evicts buckets idle for longer than idle every interval until ctx
// is done.
func (l *limiters) sweep(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now.Add(-idle))
		}
	}
}

// RateLimit returns per-identity (API key, else client IP) token-bucket
// middleware. Buckets idle for an hour are evicted every five minutes
// until ctx is done.
//
// Analyses hold a browser session for seconds, so the defaults are low:
// one run per second with a burst of four.
func RateLimit(ctx context.Context, cfg config.RateLimitConfig) gin.HandlerFunc {
	set := newLimiters(cfg)
	go set.sweep(ctx, 5*time.Minute, time.Hour)

	return func(c *gin.Context) {
		identity := c.GetString(IdentityKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		if !set.get(identity, time.Now()).Allow() {
			c.Header("Retry-After", strconv.Itoa(retryAfter(cfg.RequestsPerSecond)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.NewErrorResponse(models.ErrCodeRateLimited,
				"rate limit exceeded, please slow down"))
			return
		}
		c.Next()
	}
}

// retryAfter is the whole number of seconds until one token refills.
func retryAfter(rps float64) int {
	if rps <= 0 {
		return 60
	}
	return int(math.Max(1, math.Ceil(1/rps)))
}
