package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docflow/internal/identity"
	"github.com/gogotex/docflow/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// limitedRouter resolves the actor from X-User, the way AuthMiddleware
// would, before the limiter runs.
func limitedRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-User"); u != "" {
			c.Request = c.Request.WithContext(identity.WithActor(c.Request.Context(), identity.Actor{ID: u}))
		}
		c.Next()
	})
	r.Use(mw)
	r.GET("/api/me/documents", func(c *gin.Context) { c.JSON(http.StatusOK, []string{}) })
	return r
}

func hit(r *gin.Engine, user, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/me/documents", nil)
	req.RemoteAddr = addr
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMemoryLimiterAllowsBurst(t *testing.T) {
	r := limitedRouter(RateLimitMiddleware(10, 2))
	before := testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory"))

	require.Equal(t, http.StatusOK, hit(r, "alice", "10.0.0.1:1").Code)
	require.Equal(t, http.StatusOK, hit(r, "alice", "10.0.0.1:1").Code)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory")))
}

func TestMemoryLimiterRejectsWithRetryAfter(t *testing.T) {
	r := limitedRouter(RateLimitMiddleware(0.25, 1))
	rejected := testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("memory"))

	require.Equal(t, http.StatusOK, hit(r, "alice", "10.0.0.1:1").Code)
	w := hit(r, "alice", "10.0.0.1:1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	// the next token is about four seconds away
	assert.Equal(t, "4", w.Header().Get("Retry-After"))
	_, kind := errorBody(t, w)
	assert.Equal(t, kindRateLimited, kind)
	assert.Equal(t, rejected+1, testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("memory")))
}

func TestMemoryLimiterRefills(t *testing.T) {
	l := NewMemoryLimiter(20, 1)
	ok, _, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	ok, retry, _ := l.Allow(context.Background(), "k")
	require.False(t, ok)
	require.Positive(t, retry)

	time.Sleep(retry + 20*time.Millisecond)
	ok, _, _ = l.Allow(context.Background(), "k")
	assert.True(t, ok)
}

func TestMemoryLimiterWithoutBurstRejectsEverything(t *testing.T) {
	ok, retry, err := NewMemoryLimiter(5, 0).Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, time.Second, retry)
}

func TestRateLimitKeysOnActorThenAddress(t *testing.T) {
	r := limitedRouter(RateLimitMiddleware(0.01, 1))

	require.Equal(t, http.StatusOK, hit(r, "alice", "10.0.0.3:1").Code)
	// same actor from another address shares the bucket
	require.Equal(t, http.StatusTooManyRequests, hit(r, "alice", "10.0.0.4:1").Code)
	// another actor behind the same address does not
	require.Equal(t, http.StatusOK, hit(r, "bob", "10.0.0.3:1").Code)

	// anonymous callers are keyed by address
	require.Equal(t, http.StatusOK, hit(r, "", "10.0.0.5:1").Code)
	require.Equal(t, http.StatusTooManyRequests, hit(r, "", "10.0.0.5:2").Code)
	require.Equal(t, http.StatusOK, hit(r, "", "10.0.0.6:1").Code)
}

func TestLimitersDoNotShareBuckets(t *testing.T) {
	a := limitedRouter(RateLimitMiddleware(0.01, 1))
	b := limitedRouter(RateLimitMiddleware(0.01, 1))
	require.Equal(t, http.StatusOK, hit(a, "alice", "10.0.0.1:1").Code)
	require.Equal(t, http.StatusOK, hit(b, "alice", "10.0.0.1:1").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Name() string { return "broken" }
func (brokenLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("backend unavailable")
}

func TestRateLimitFailsClosed(t *testing.T) {
	w := hit(limitedRouter(RateLimit(brokenLimiter{})), "alice", "10.0.0.1:1")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestRetryAfterRoundsUp(t *testing.T) {
	assert.Equal(t, 1, retryAfter(0))
	assert.Equal(t, 1, retryAfter(300*time.Millisecond))
	assert.Equal(t, 2, retryAfter(1100*time.Millisecond))
	assert.Equal(t, 60, retryAfter(time.Minute))
}
