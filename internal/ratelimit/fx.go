package ratelimit

import (
	"github.com/fieldpass/checkout/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(
		provideRedisClient,
		NewTokenBucket,
		NewLocker,
		NewLimiter,
	),
)

// provideRedisClient returns nil when rate limiting is disabled; the
// limiter treats a missing client as fail-open.
func provideRedisClient(cfg config.Config) *redis.Client {
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
}
