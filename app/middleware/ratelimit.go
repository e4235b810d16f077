package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-fan-billing/app/factory"
	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// Window and Prefix apply to the Redis store only.
	Window time.Duration
	Prefix string
}

type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisRateLimiterStore is a fixed-window counter shared by every replica.
type RedisRateLimiterStore struct {
	client  redisCounter
	limit   int64
	window  time.Duration
	prefix  string
	timeout time.Duration
	now     func() time.Time
	logger  logrus.FieldLogger
}

func NewRedisRateLimiterStore(client redisCounter, cfg RateLimitConfig) *RedisRateLimiterStore {
	window := cfg.Window
	if window <= 0 {
		window = time.Second
	}
	limit := int64(cfg.RequestsPerSecond*window.Seconds()) + int64(cfg.Burst)
	if limit <= 0 {
		limit = 1
	}
	prefix := strings.TrimRight(cfg.Prefix, ":")
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiterStore{
		client:  client,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		timeout: 100 * time.Millisecond,
		now:     time.Now,
		logger:  factory.NewModuleLogger("ratelimit"),
	}
}

// Allow fails open when Redis is unreachable.
func (s *RedisRateLimiterStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	bucket := s.now().UnixNano() / int64(s.window)
	key := fmt.Sprintf("%s:%s:%d", s.prefix, identifier, bucket)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		s.logger.WithError(err).Warn("rate limit store unavailable")
		return true, nil
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, 2*s.window).Err(); err != nil {
			s.logger.WithError(err).Warn("rate limit key expiry failed")
		}
	}
	return count <= s.limit, nil
}

func NewMemoryRateLimiterStore(cfg RateLimitConfig) echomiddleware.RateLimiterStore {
	return echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     cfg.Burst,
		ExpiresIn: 3 * time.Minute,
	})
}

// RateLimit keys requests by route and client IP, so each endpoint sharing a
// store keeps its own budget, and answers 429 with the service error body.
func RateLimit(store echomiddleware.RateLimiterStore) echo.MiddlewareFunc {
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store:               store,
		IdentifierExtractor: routeClientIdentifier,
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "unable to identify client"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		},
	})
}

func routeClientIdentifier(c echo.Context) (string, error) {
	route := c.Path()
	if route == "" {
		route = c.Request().URL.Path
	}
	return route + "|" + c.RealIP(), nil
}
