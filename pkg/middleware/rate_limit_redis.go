package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts requests per key in fixed windows shared by every
// instance. A window admits floor(rps*window)+burst requests.
type RedisLimiter struct {
	client  *redis.Client
	prefix  string
	window  time.Duration
	allowed int64
	now     func() time.Time
}

func NewRedisLimiter(client *redis.Client, rps float64, burst int, window time.Duration) *RedisLimiter {
	if window < time.Second {
		window = time.Second
	}
	window = window.Truncate(time.Second)
	return &RedisLimiter{
		client:  client,
		prefix:  "docflow:rl",
		window:  window,
		allowed: int64(rps*window.Seconds()) + int64(burst),
		now:     time.Now,
	}
}

func (r *RedisLimiter) Name() string { return "redis" }

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := r.now()
	secs := int64(r.window / time.Second)
	start := now.Unix() / secs * secs
	redisKey := fmt.Sprintf("%s:%s:%d", r.prefix, key, start)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, r.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("count %s: %w", redisKey, err)
	}
	if incr.Val() > r.allowed {
		return false, time.Unix(start+secs, 0).Sub(now), nil
	}
	return true, 0, nil
}

// RedisRateLimitMiddleware limits callers across instances. Without a
// client it falls back to the in-process limiter.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	return RateLimit(NewRedisLimiter(client, rps, burst, window))
}
