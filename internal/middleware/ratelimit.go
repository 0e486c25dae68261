package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an IP's limiter is kept after its last request.
const limiterIdleTTL = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiters hands out one token bucket per client IP.
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

func newIPLimiters(requests int, per time.Duration) *ipLimiters {
	return &ipLimiters{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Every(per / time.Duration(requests)),
		burst:    requests,
		now:      time.Now,
	}
}

// allow reports whether ip may make a request now. Idle limiters are swept
// on the way.
func (l *ipLimiters) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, v := range l.limiters {
		if now.Sub(v.lastSeen) > limiterIdleTTL {
			delete(l.limiters, k)
		}
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// RateLimit limits each client IP to requests per window, as a token bucket
// that allows a burst of requests and refills evenly. Excess requests get 429.
func RateLimit(requests int, per time.Duration) echo.MiddlewareFunc {
	limiters := newIPLimiters(requests, per)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiters.allow(c.RealIP()) {
				c.Response().Header().Set("Retry-After", "60")
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many attempts. Please wait a minute and try again.")
			}
			return next(c)
		}
	}
}
