package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var errLimiterUnavailable = errors.New("rate limiter unavailable")

// rateLimiter enforces fixed windows in Redis: INCR the scope key, set
// the expiry when the key is fresh, reject once the count passes the
// limit. Windows are approximate at the boundary, which is acceptable
// for abuse throttling.
type rateLimiter struct {
	redis  redis.UniversalClient
	config RateLimitConfig
}

func newRateLimiter(redisClient redis.UniversalClient, cfg RateLimitConfig) *rateLimiter {
	if !cfg.Enabled {
		return nil
	}
	return &rateLimiter{redis: redisClient, config: cfg}
}

func (l *rateLimiter) CheckLogin(ctx context.Context, email, ip string) error {
	if l == nil || l.config.LoginMax <= 0 {
		return nil
	}
	if err := l.enforceFixedWindow(ctx, "arl:login:"+email, l.config.LoginMax, l.config.LoginWindow); err != nil {
		return err
	}
	if ip != "" {
		return l.enforceFixedWindow(ctx, "arl:loginip:"+ip, l.config.LoginMax, l.config.LoginWindow)
	}
	return nil
}

func (l *rateLimiter) CheckOTPIssue(ctx context.Context, intent OTPIntent, email string) error {
	if l == nil || l.config.OTPIssueMax <= 0 {
		return nil
	}
	key := "arl:otpi:" + string(intent) + ":" + email
	return l.enforceFixedWindow(ctx, key, l.config.OTPIssueMax, l.config.OTPIssueWindow)
}

func (l *rateLimiter) CheckOTPVerify(ctx context.Context, intent OTPIntent, email string) error {
	if l == nil || l.config.OTPVerifyMax <= 0 {
		return nil
	}
	key := "arl:otpv:" + string(intent) + ":" + email
	return l.enforceFixedWindow(ctx, key, l.config.OTPVerifyMax, l.config.OTPVerifyWindow)
}

func (l *rateLimiter) CheckRefresh(ctx context.Context, tokenID string) error {
	if l == nil || l.config.RefreshMax <= 0 {
		return nil
	}
	return l.enforceFixedWindow(ctx, "arl:refresh:"+tokenID, l.config.RefreshMax, l.config.RefreshWindow)
}

func (l *rateLimiter) enforceFixedWindow(ctx context.Context, key string, max int, window time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", errLimiterUnavailable, err)
		}
	}

	if count > int64(max) {
		return ErrRateLimited
	}

	return nil
}
