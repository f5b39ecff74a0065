package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"pulseflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// tokenBucketScript keeps one hash per caller with fields tokens and ts.
// ARGV: rate, capacity, now (seconds), requested.
// Returns {allowed, remaining, reset_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now

tokens = math.min(capacity, tokens + math.max(0, now - ts) * rate)

local allowed = 0
local reset_ms = 0
if tokens >= requested then
    allowed = 1
    tokens = tokens - requested
else
    reset_ms = math.ceil((requested - tokens) / rate * 1000)
end

redis.call("HSET", key, "tokens", tokens, "ts", now)
redis.call("EXPIRE", key, math.ceil(capacity / rate * 2) + 1)

return { allowed, math.floor(tokens), reset_ms }
`)

const (
	rateLimitPrefix = "pulseflow:ratelimit:"
	redisBudget     = 100 * time.Millisecond
	fallbackIdle    = 10 * time.Minute
)

// RateLimiter throttles admin writes per caller. Redis holds the shared
// bucket; when Redis is unreachable each instance falls back to a local one.
type RateLimiter struct {
	rdb   *redis.Client
	limit int
	now   func() time.Time

	mu       sync.Mutex
	fallback map[string]*localBucket
	sweptAt  time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rdb *redis.Client, requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &RateLimiter{
		rdb:      rdb,
		limit:    requestsPerSecond,
		now:      time.Now,
		fallback: make(map[string]*localBucket),
	}
}

// RateLimitMiddleware is a convenience wrapper for NewRateLimiter(...).Handler().
func RateLimitMiddleware(rdb *redis.Client, requestsPerSecond int) gin.HandlerFunc {
	return NewRateLimiter(rdb, requestsPerSecond).Handler()
}

func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := callerKey(c)
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.limit))

		allowed, remaining, resetAfter, err := l.take(c.Request.Context(), caller)
		if err != nil {
			logger.Warn("redis rate limit unavailable, using local bucket", zap.String("caller", caller), zap.Error(err))
			allowed, remaining, resetAfter = l.takeLocal(caller)
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(l.now().Add(resetAfter).Unix(), 10))
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) take(ctx context.Context, caller string) (bool, int, time.Duration, error) {
	if l.rdb == nil {
		return false, 0, 0, redis.ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, redisBudget)
	defer cancel()

	now := float64(l.now().UnixMicro()) / 1e6
	res, err := tokenBucketScript.Run(ctx, l.rdb, []string{rateLimitPrefix + caller}, l.limit, l.limit, now, 1).Int64Slice()
	if err != nil {
		return false, 0, 0, err
	}
	if len(res) != 3 {
		// Malformed replies fail open.
		logger.Error("unexpected rate limit reply", zap.Int64s("reply", res))
		return true, l.limit, 0, nil
	}
	return res[0] == 1, int(res[1]), time.Duration(res[2]) * time.Millisecond, nil
}

func (l *RateLimiter) takeLocal(caller string) (bool, int, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.sweptAt) > fallbackIdle {
		for k, b := range l.fallback {
			if now.Sub(b.lastSeen) > fallbackIdle {
				delete(l.fallback, k)
			}
		}
		l.sweptAt = now
	}

	b, ok := l.fallback[caller]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(rate.Limit(l.limit), l.limit)}
		l.fallback[caller] = b
	}
	b.lastSeen = now

	if !b.limiter.AllowN(now, 1) {
		return false, 0, time.Second
	}
	return true, int(b.limiter.TokensAt(now)), 0
}

// callerKey prefers the authenticated operator and falls back to the client IP.
func callerKey(c *gin.Context) string {
	if op := c.GetString(operatorKey); op != "" {
		return "op:" + op
	}
	return "ip:" + c.ClientIP()
}
