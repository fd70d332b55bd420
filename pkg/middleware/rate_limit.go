package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/gogotex/docflow/pkg/logger"
	"github.com/gogotex/docflow/pkg/metrics"
	"golang.org/x/time/rate"
)

// Limiter decides whether the caller identified by key may proceed. When it
// may not, retry says how long to wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (ok bool, retry time.Duration, err error)
	// Name labels the limiter in metrics.
	Name() string
}

// MemoryLimiter keeps one token bucket per key in this process.
type MemoryLimiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	byKey map[string]*rate.Limiter
}

func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{limit: rate.Limit(rps), burst: burst, byKey: map[string]*rate.Limiter{}}
}

func (m *MemoryLimiter) Name() string { return "memory" }

func (m *MemoryLimiter) bucket(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	lim, ok := m.byKey[key]
	if !ok {
		lim = rate.NewLimiter(m.limit, m.burst)
		m.byKey[key] = lim
	}
	return lim
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	r := m.bucket(key).Reserve()
	if !r.OK() {
		return false, time.Second, nil
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return false, d, nil
	}
	return true, 0, nil
}

// limitKey prefers the authenticated actor and falls back to the client IP.
func limitKey(c *gin.Context) string {
	if a, ok := identity.FromContext(c.Request.Context()); ok {
		return "sub:" + a.ID
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// RateLimit rejects callers that l refuses with 429 and a Retry-After header.
// A limiter error fails closed.
func RateLimit(l Limiter) gin.HandlerFunc {
	name := l.Name()
	return func(c *gin.Context) {
		key := limitKey(c)
		ok, retry, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Errorf("rate limit check for %s failed: %v", key, err)
			reject(c, http.StatusInternalServerError, "internal", "rate limit check failed")
			return
		}
		if !ok {
			c.Header("Retry-After", strconv.Itoa(retryAfter(retry)))
			metrics.RateLimitRejected.WithLabelValues(name).Inc()
			reject(c, http.StatusTooManyRequests, kindRateLimited, "rate limit exceeded")
			return
		}
		metrics.RateLimitAllowed.WithLabelValues(name).Inc()
		c.Next()
	}
}

// retryAfter rounds up to whole seconds, at least one.
func retryAfter(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// RateLimitMiddleware limits each caller to rps requests per second with
// bursts of up to burst requests.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	return RateLimit(NewMemoryLimiter(rps, burst))
}
