package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/sieve/config"
	"github.com/use-agent/sieve/models"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns per-client-IP token-bucket rate limiting middleware.
// It protects the service itself; outbound pacing per origin is done by
// the engine.
//
// Entries unused for 1 hour are evicted by a background goroutine that runs
// every 5 minutes.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*limiterEntry)

	getLimiter := func(identity string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		entry, ok := limiters[identity]
		if !ok {
			entry = &limiterEntry{
				limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			}
			limiters[identity] = entry
		}
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour)
			mu.Lock()
			for id, entry := range limiters {
				if entry.lastSeen.Before(cutoff) {
					delete(limiters, id)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		if !getLimiter(c.ClientIP()).Allow() {
			se := models.NewScrapeError(models.KindNetwork, models.ErrCodeRateLimited,
				"rate limit exceeded, please slow down", nil).
				WithStatus(http.StatusTooManyRequests).
				WithSuggestion("Reduce the request rate to the service and retry later.")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ScrapeResult{Success: false, Error: se})
			return
		}
		c.Next()
	}
}
