package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/martpos/internal/config"
	"go.uber.org/zap"
)

const keyMobileIP = "ratelimit:mobile:ip:%s"

// MobileLimiter throttles token-bound scanner endpoints per client IP. A nil
// limiter allows everything.
type MobileLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewMobileLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) (*MobileLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		log.Warn("rate limiting enabled but redis is not configured; mobile endpoints are unthrottled")
		return nil, nil
	}
	if limitCfg.MobileRate <= 0 || limitCfg.MobileBurst <= 0 {
		return nil, errors.New("mobile rate limit must be positive")
	}
	return &MobileLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.MobileRate,
		burst:  limitCfg.MobileBurst,
	}, nil
}

func (l *MobileLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *MobileLimiter) AllowIP(ctx context.Context, ip string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyMobileIP, ip), l.rate, l.burst)
}
