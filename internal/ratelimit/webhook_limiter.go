package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/kormohq/kormo/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyWebhookProvider = "webhook:ingest:%s"

// WebhookLimiter throttles inbound gateway webhooks per provider. Disabled
// when no redis is configured; a disabled limiter admits everything.
type WebhookLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewWebhookLimiter(cfg config.Config) *WebhookLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" || cfg.WebhookRatePerSecond <= 0 || cfg.WebhookRateBurst <= 0 {
		return &WebhookLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &WebhookLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    float64(cfg.WebhookRatePerSecond),
		burst:   cfg.WebhookRateBurst,
	}
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *WebhookLimiter) Allow(ctx context.Context, provider string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookProvider, strings.TrimSpace(provider)), l.rate, l.burst)
}
