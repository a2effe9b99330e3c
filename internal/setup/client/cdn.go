// Package client builds the HTTP client used for part-sprite CDN fetches.
package client

import (
	"time"

	"github.com/fableforge/avatard/internal/redis"
	"github.com/fableforge/avatard/internal/setup/client/logger"
	"github.com/fableforge/avatard/internal/setup/config"
	"github.com/jaxron/axonet/middleware/circuitbreaker"
	axonetRedis "github.com/jaxron/axonet/middleware/redis"
	"github.com/jaxron/axonet/middleware/retry"
	"github.com/jaxron/axonet/middleware/singleflight"
	"github.com/jaxron/axonet/pkg/client"
	"github.com/jaxron/axonet/pkg/client/middleware"
	"go.uber.org/zap"
)

// responseCacheTTL is how long CDN responses stay in the optional Redis
// cache. Part sprites are immutable, so a long TTL is safe.
const responseCacheTTL = 1 * time.Hour

// GetCDNClient constructs the HTTP client with a middleware chain for
// reliability: circuit breaker, retry with backoff and request coalescing,
// plus an optional Redis response cache. Order matters; the breaker sits
// outermost so an open circuit rejects before any retries run.
func GetCDNClient(
	cfg *config.Config, redisManager *redis.Manager, zapLogger *zap.Logger, requestTimeout time.Duration,
) (*client.Client, error) {
	middlewares := []middleware.Middleware{
		circuitbreaker.New(
			cfg.CircuitBreaker.MaxRequests,
			time.Duration(cfg.CircuitBreaker.Interval)*time.Millisecond,
			time.Duration(cfg.CircuitBreaker.Timeout)*time.Millisecond,
		),
		retry.New(
			cfg.Retry.MaxRetries,
			time.Duration(cfg.Retry.Delay)*time.Millisecond,
			time.Duration(cfg.Retry.MaxDelay)*time.Millisecond,
		),
		singleflight.New(),
	}

	// Response caching is optional; sprite fetches work without Redis.
	if cfg.Redis.Enabled {
		redisClient, err := redisManager.GetClient(redis.CacheDBIndex)
		if err != nil {
			return nil, err
		}

		middlewares = append(middlewares, axonetRedis.New(redisClient, responseCacheTTL))
	}

	return client.NewClient(
		client.WithLogger(logger.New(zapLogger)),
		client.WithTimeout(requestTimeout),
		client.WithMiddleware(middlewares...),
	), nil
}
