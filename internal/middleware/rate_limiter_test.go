package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/freemember/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimitedEcho(store echomw.RateLimiterStore) *echo.Echo {
	e := echo.New()
	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}
	e.GET("/", handler, RateLimiter(store))
	e.POST("/", handler, RateLimiter(store))
	return e
}

func serve(e *echo.Echo, method, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", nil)
	req.RemoteAddr = ip
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter(t *testing.T) {
	cfg := config.FromViper(viper.New())
	store, closeFn, err := NewRateLimiterStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()

	e := newLimitedEcho(store)

	t.Run("allows requests within the limit", func(t *testing.T) {
		rec := serve(e, http.MethodPost, "192.0.2.1:1234")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("blocks submissions exceeding the limit", func(t *testing.T) {
		limit := cfg.GetRateLimitPerMinute()
		clientIP := "192.0.2.2:1234"

		for i := 0; i < limit; i++ {
			rec := serve(e, http.MethodPost, clientIP)
			require.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
		}

		rec := serve(e, http.MethodPost, clientIP)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Contains(t, rec.Body.String(), "Too many requests")

		// Page views are never limited.
		rec = serve(e, http.MethodGet, clientIP)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestNewRateLimiterStore(t *testing.T) {
	t.Run("rejects unknown store", func(t *testing.T) {
		cfg := config.FromViper(viper.New())
		cfg.Set("RATE_LIMIT_STORE", "carrier-pigeon")
		_, _, err := NewRateLimiterStore(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("rejects non positive limit", func(t *testing.T) {
		cfg := config.FromViper(viper.New())
		cfg.Set("RATE_LIMIT_PER_MINUTE", 0)
		_, _, err := NewRateLimiterStore(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("connects to redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.FromViper(viper.New())
		cfg.Set("RATE_LIMIT_STORE", "redis")
		cfg.Set("REDIS_ADDR", mr.Addr())

		store, closeFn, err := NewRateLimiterStore(context.Background(), cfg)
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &RedisRateLimiterStore{}, store)
	})
}

func TestRedisRateLimiterStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisRateLimiterStore(client, 3, time.Minute)

	for i := 0; i < 3; i++ {
		ok, err := store.Allow("203.0.113.9")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}
	ok, err := store.Allow("203.0.113.9")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Allow("203.0.113.10")
	require.NoError(t, err)
	assert.True(t, ok, "other clients have their own window")

	assert.Equal(t, time.Minute, mr.TTL("freemember:rl:203.0.113.9"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = store.Allow("203.0.113.9")
	require.NoError(t, err)
	assert.True(t, ok, "window resets after expiry")
}

func TestRedisRateLimiterStoreFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	ok, err := NewRedisRateLimiterStore(client, 1, time.Minute).Allow("198.51.100.1")
	assert.NoError(t, err)
	assert.True(t, ok)
}
