// Package ratelimit provides an optional per-IP limiter for the
// report endpoint. Ingestion is anonymous, so this is the only
// server-side guard against a client that ignores the local throttle.
package ratelimit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v3"

	"github.com/playfastgg/pingmap/internal/metrics"
)

// Limiter counts submissions per key inside a rolling TTL window.
type Limiter struct {
	max  int
	mu   sync.Mutex
	hits *ttlcache.Cache[string, *atomic.Int64]
}

// New returns a limiter allowing max submissions per window per key,
// or nil when max <= 0 (limiting disabled).
func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		return nil
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *atomic.Int64](window),
		ttlcache.WithDisableTouchOnHit[string, *atomic.Int64](),
	)
	go cache.Start()
	return &Limiter{max: max, hits: cache}
}

// Allow records one hit for key and reports whether it is still
// within budget. An empty key (no attributable caller) always passes.
func (l *Limiter) Allow(key string) bool {
	if l == nil || key == "" {
		return true
	}

	l.mu.Lock()
	item := l.hits.Get(key)
	if item == nil {
		counter := &atomic.Int64{}
		l.hits.Set(key, counter, ttlcache.DefaultTTL)
		item = l.hits.Get(key)
	}
	l.mu.Unlock()

	return item.Value().Add(1) <= int64(l.max)
}

// Middleware rejects over-budget submissions with 429. keyFn derives
// the limiter key (the caller IP) from the request.
func (l *Limiter) Middleware(keyFn func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(keyFn(c)) {
			metrics.RateLimited.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "rate limited"})
			return
		}
		c.Next()
	}
}

// Close stops the underlying cache janitor.
func (l *Limiter) Close() {
	if l != nil {
		l.hits.Stop()
	}
}
