package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/octobees/supplier-outreach/internal/config"
)

// idleLimiterTTL bounds how long an unused per-operator bucket is kept.
const idleLimiterTTL = 30 * time.Minute

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SearchRateLimiter applies a token bucket to search creation. Each
// authenticated operator gets its own bucket; anonymous callers share one
// keyed by client IP.
func SearchRateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Requests <= 0 || cfg.Interval <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return next(c)
			}
		}
	}

	perRequest := cfg.Interval / time.Duration(cfg.Requests)
	if perRequest <= 0 {
		perRequest = time.Second
	}

	var mu sync.Mutex
	limiters := make(map[string]*keyedLimiter)

	allow := func(key string) bool {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		for k, l := range limiters {
			if now.Sub(l.lastSeen) > idleLimiterTTL {
				delete(limiters, k)
			}
		}
		l, ok := limiters[key]
		if !ok {
			l = &keyedLimiter{limiter: rate.NewLimiter(rate.Every(perRequest), cfg.Requests)}
			limiters[key] = l
		}
		l.lastSeen = now
		return l.limiter.Allow()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := OperatorIDFromContext(c)
			if key == "" {
				key = "ip:" + c.RealIP()
			}
			if !allow(key) {
				return c.JSON(http.StatusTooManyRequests, errorBody("search rate limit exceeded"))
			}
			return next(c)
		}
	}
}
