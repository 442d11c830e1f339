package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fakeacquirer/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyInvoiceCreateClient = "acquirer:invoice:create:client:%s"

// Bucket is the token bucket contract the limiter depends on.
type Bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error)
}

// InvoiceCreateLimiter throttles POST /invoices per client. A nil limiter
// allows everything.
type InvoiceCreateLimiter struct {
	bucket Bucket
	rate   float64
	burst  int
}

// NewInvoiceCreateLimiter returns nil when rate limiting is disabled.
func NewInvoiceCreateLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*InvoiceCreateLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.InvoiceCreateRate <= 0 || limitCfg.InvoiceCreateBurst <= 0 {
		return nil, errors.New("invoice create rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					// Requests fail with 503 until redis is reachable.
					log.Warn("rate limit redis unreachable", zap.String("addr", addr), zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}

	log.Info("invoice create rate limit enabled",
		zap.String("addr", addr),
		zap.Float64("rate", limitCfg.InvoiceCreateRate),
		zap.Int("burst", limitCfg.InvoiceCreateBurst),
	)

	return NewInvoiceCreateLimiterWithBucket(NewTokenBucket(client), limitCfg.InvoiceCreateRate, limitCfg.InvoiceCreateBurst), nil
}

func NewInvoiceCreateLimiterWithBucket(bucket Bucket, rate float64, burst int) *InvoiceCreateLimiter {
	return &InvoiceCreateLimiter{bucket: bucket, rate: rate, burst: burst}
}

func (l *InvoiceCreateLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow takes one token from the client's bucket.
func (l *InvoiceCreateLimiter) Allow(ctx context.Context, clientKey string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		clientKey = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyInvoiceCreateClient, clientKey), l.rate, l.burst)
}
