package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/pricedesk/internal/config"
	"go.uber.org/zap"
)

const keyWebhookSource = "webhook:%s:%s"

// WebhookLimiter throttles unauthenticated provider callbacks per source
// address. A nil limiter allows everything.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewWebhookLimiter(bucket *TokenBucket, cfg config.Config, log *zap.Logger) *WebhookLimiter {
	if !cfg.RateLimit.Enabled || bucket == nil {
		return nil
	}
	return &WebhookLimiter{
		bucket: bucket,
		rate:   cfg.RateLimit.WebhookRate,
		burst:  cfg.RateLimit.WebhookBurst,
		log:    log.Named("ratelimit.webhook"),
	}
}

// Allow fails open when Redis errors so provider retries are not lost.
func (l *WebhookLimiter) Allow(ctx context.Context, provider, source string) Result {
	if l == nil {
		return Result{Allowed: true}
	}
	key := fmt.Sprintf(keyWebhookSource, provider, strings.TrimSpace(source))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("webhook rate limit check failed", zap.String("provider", provider), zap.Error(err))
		return Result{Allowed: true}
	}
	return res
}
