package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulseflow/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
	gin.SetMode(gin.TestMode)
}

func limitedRouter(l *RateLimiter) *gin.Engine {
	r := gin.New()
	r.POST("/reload", l.Handler(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func hit(r http.Handler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_RedisBucket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRateLimiter(rdb, 2)
	frozen := time.Unix(1_760_000_000, 0)
	l.now = func() time.Time { return frozen }
	r := limitedRouter(l)

	first := hit(r)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, hit(r).Code)

	blocked := hit(r)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))

	assert.True(t, mr.Exists(rateLimitPrefix+"ip:10.0.0.1"))

	frozen = frozen.Add(time.Second)
	assert.Equal(t, http.StatusOK, hit(r).Code)
}

func TestRateLimiter_RedisFailureFallsBackToLocal(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:0",
		DialTimeout: 10 * time.Millisecond,
		ReadTimeout: 10 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	l := NewRateLimiter(rdb, 1)
	r := limitedRouter(l)

	w := hit(r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusTooManyRequests, hit(r).Code)
}

func TestRateLimiter_KeysByOperator(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewRateLimiter(rdb, 5)
	r := gin.New()
	r.POST("/reload", func(c *gin.Context) { c.Set(operatorKey, "alice") }, l.Handler(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, hit(r).Code)
	assert.True(t, mr.Exists(rateLimitPrefix+"op:alice"))
}
