package ratelimit

import (
	"context"

	"github.com/fieldpass/checkout/internal/config"
	obsmetrics "github.com/fieldpass/checkout/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Limiter applies per-caller token buckets to the public checkout
// endpoints. When no redis is configured every request is allowed;
// redis outages also fail open, since dropping checkouts is worse
// than letting a burst through.
type Limiter struct {
	bucket     *TokenBucket
	cfg        config.RateLimitConfig
	log        *zap.Logger
	obsMetrics *obsmetrics.Metrics
}

type LimiterParams struct {
	fx.In

	Bucket     *TokenBucket `optional:"true"`
	Cfg        config.Config
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewLimiter(p LimiterParams) *Limiter {
	return &Limiter{
		bucket:     p.Bucket,
		cfg:        p.Cfg.RateLimit,
		log:        p.Log.Named("ratelimit"),
		obsMetrics: p.ObsMetrics,
	}
}

// AllowWebhook gates inbound processor webhook deliveries by source.
func (l *Limiter) AllowWebhook(ctx context.Context, source string) bool {
	return l.allow(ctx, "webhook", "rl:webhook:"+source, l.cfg.WebhookRate, l.cfg.WebhookBurst)
}

// AllowSave gates checkout draft saves by session.
func (l *Limiter) AllowSave(ctx context.Context, sessionID string) bool {
	return l.allow(ctx, "save", "rl:save:"+sessionID, l.cfg.SaveRate, l.cfg.SaveBurst)
}

func (l *Limiter) allow(ctx context.Context, endpoint, key string, rate float64, burst int) bool {
	if l == nil || !l.cfg.Enabled || l.bucket == nil {
		return true
	}

	result, err := l.bucket.Allow(ctx, key, rate, burst)
	if err != nil {
		l.log.Warn("rate limit check failed, allowing request", zap.Error(err))
		return true
	}
	if result.Allowed {
		if l.obsMetrics != nil {
			l.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		}
		return true
	}
	if l.obsMetrics != nil {
		l.obsMetrics.RecordRateLimitDenied(ctx, endpoint, "bucket_empty")
	}
	return false
}
