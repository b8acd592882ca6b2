package authkit

import (
	"errors"
	"time"

	"github.com/halcyon-auth/authkit/password"
	"github.com/halcyon-auth/authkit/token"
)

// OTPConfig controls one-time code issuance and verification.
type OTPConfig struct {
	// Digits is the code length, 6 to 10.
	Digits int
	// TTL is the validity window of an issued code.
	TTL time.Duration
	// MaxAttempts is the wrong-guess budget before a code is killed.
	MaxAttempts int
}

// PasswordResetConfig controls the reset-grant step between OTP
// confirmation and the actual password change.
type PasswordResetConfig struct {
	// GrantTTL bounds how long a confirmed reset OTP stays redeemable.
	GrantTTL time.Duration
}

// RateLimitConfig holds fixed-window limits per operation scope. A zero
// Max disables that scope.
type RateLimitConfig struct {
	Enabled         bool
	LoginMax        int
	LoginWindow     time.Duration
	OTPIssueMax     int
	OTPIssueWindow  time.Duration
	OTPVerifyMax    int
	OTPVerifyWindow time.Duration
	RefreshMax      int
	RefreshWindow   time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds events instead of blocking the request path when
	// the buffer is saturated. Dropped counts are tracked.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// Config is the full engine configuration.
type Config struct {
	Token         token.Config
	Password      password.Config
	OTP           OTPConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	// RegistryPrefix namespaces registry keys in Redis.
	RegistryPrefix string
	// OTPPrefix namespaces one-time code keys in Redis.
	OTPPrefix string
}

// DefaultConfig returns the production baseline: 15m access tokens, 7d
// refresh tokens, 6-digit codes valid 10 minutes with 5 attempts.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: token.MethodEd25519,
			Leeway:        30 * time.Second,
		},
		Password: password.DefaultConfig(),
		OTP: OTPConfig{
			Digits:      6,
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
		},
		PasswordReset: PasswordResetConfig{
			GrantTTL: 10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			LoginMax:        10,
			LoginWindow:     time.Minute,
			OTPIssueMax:     5,
			OTPIssueWindow:  10 * time.Minute,
			OTPVerifyMax:    15,
			OTPVerifyWindow: 10 * time.Minute,
			RefreshMax:      30,
			RefreshWindow:   time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics:        MetricsConfig{Enabled: true},
		RegistryPrefix: "areg",
		OTPPrefix:      "aotp",
	}
}

func (c *Config) validate() error {
	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 6 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("otp ttl must be positive")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("otp max attempts must be positive")
	}
	if c.PasswordReset.GrantTTL <= 0 {
		return errors.New("password reset grant ttl must be positive")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.LoginMax > 0 && c.RateLimit.LoginWindow <= 0 {
			return errors.New("login rate limit window must be positive")
		}
		if c.RateLimit.OTPIssueMax > 0 && c.RateLimit.OTPIssueWindow <= 0 {
			return errors.New("otp issue rate limit window must be positive")
		}
		if c.RateLimit.OTPVerifyMax > 0 && c.RateLimit.OTPVerifyWindow <= 0 {
			return errors.New("otp verify rate limit window must be positive")
		}
		if c.RateLimit.RefreshMax > 0 && c.RateLimit.RefreshWindow <= 0 {
			return errors.New("refresh rate limit window must be positive")
		}
	}
	if c.RegistryPrefix == "" {
		c.RegistryPrefix = "areg"
	}
	if c.OTPPrefix == "" {
		c.OTPPrefix = "aotp"
	}

	return nil
}
