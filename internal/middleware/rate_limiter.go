package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/freemember/internal/config"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter limits form submissions per client IP. Only POST requests are
// counted so page views never consume the budget.
func RateLimiter(store middleware.RateLimiterStore) echo.MiddlewareFunc {
	cfg := middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Method != http.MethodPost
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.String(http.StatusTooManyRequests, "Too many requests. Please try again later.")
		},
	}
	return middleware.RateLimiterWithConfig(cfg)
}

// NewRateLimiterStore builds the store selected by RATE_LIMIT_STORE. The
// returned close func releases any connection the store holds.
func NewRateLimiterStore(ctx context.Context, cfg config.Provider) (middleware.RateLimiterStore, func() error, error) {
	perMinute := cfg.GetRateLimitPerMinute()
	if perMinute <= 0 {
		return nil, nil, fmt.Errorf("rate limit must be positive, got %d", perMinute)
	}

	switch cfg.GetRateLimitStore() {
	case "", "memory":
		store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(float64(perMinute) / 60),
			Burst:     perMinute,
			ExpiresIn: 3 * time.Minute,
		})
		return store, func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.GetRedisAddr()})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.GetRedisAddr(), err)
		}
		return NewRedisRateLimiterStore(client, perMinute, time.Minute), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit store %q", cfg.GetRateLimitStore())
	}
}

// RedisRateLimiterStore is a fixed window counter shared by every instance
// pointing at the same redis.
type RedisRateLimiterStore struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
}

var _ middleware.RateLimiterStore = (*RedisRateLimiterStore)(nil)

func NewRedisRateLimiterStore(client redis.UniversalClient, limit int, window time.Duration) *RedisRateLimiterStore {
	return &RedisRateLimiterStore{
		client: client,
		limit:  limit,
		window: window,
		prefix: "freemember:rl:",
	}
}

// Allow counts one request for identifier. Redis failures let the request
// through.
func (s *RedisRateLimiterStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	key := s.prefix + identifier
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("rate limiter unavailable, allowing request", "error", err)
		return true, nil
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, s.window).Err(); err != nil {
			slog.Warn("failed to set rate limit window", "key", key, "error", err)
		}
	}
	return count <= int64(s.limit), nil
}
