package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
)

// idle client limiters are dropped after limiterTTL
const limiterTTL = 10 * time.Minute

type timedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client IP
type clientLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*timedLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		limiters: make(map[string]*timedLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterTTL {
		for key, tl := range l.limiters {
			if now.Sub(tl.lastSeen) > limiterTTL {
				delete(l.limiters, key)
			}
		}
		l.lastSweep = now
	}

	tl, ok := l.limiters[client]
	if !ok {
		tl = &timedLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[client] = tl
	}
	tl.lastSeen = now
	return tl.limiter.AllowN(now, 1)
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// rateLimiter rejects evaluation requests beyond perSecond per client.
// A zero rate disables limiting.
func rateLimiter(perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newClientLimiter(perSecond, burst)
	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			respondError(c, http.StatusTooManyRequests, "rate limit exceeded",
				apperrors.NewValidationError("too many evaluation requests", nil))
			return
		}
		c.Next()
	}
}
