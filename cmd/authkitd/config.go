package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	authkit "github.com/halcyon-auth/authkit"
	"github.com/halcyon-auth/authkit/token"
)

// envConfig is the full service configuration, parsed from the process
// environment after an optional .env load.
type envConfig struct {
	Addr        string `env:"AUTHKIT_ADDR" envDefault:":8080"`
	Environment string `env:"AUTHKIT_ENV" envDefault:"development"`

	RedisAddr     string `env:"AUTHKIT_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"AUTHKIT_REDIS_PASSWORD"`
	RedisDB       int    `env:"AUTHKIT_REDIS_DB" envDefault:"0"`

	SQLitePath string `env:"AUTHKIT_SQLITE_PATH" envDefault:"authkit.db"`

	SigningMethod  string        `env:"AUTHKIT_TOKEN_METHOD" envDefault:"hs256"`
	TokenSecret    string        `env:"AUTHKIT_TOKEN_SECRET"`
	PrivateKeyFile string        `env:"AUTHKIT_TOKEN_PRIVATE_KEY_FILE"`
	PublicKeyFile  string        `env:"AUTHKIT_TOKEN_PUBLIC_KEY_FILE"`
	Issuer         string        `env:"AUTHKIT_TOKEN_ISSUER" envDefault:"authkit"`
	AccessTTL      time.Duration `env:"AUTHKIT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL     time.Duration `env:"AUTHKIT_REFRESH_TTL" envDefault:"168h"`

	RateLimitEnabled bool `env:"AUTHKIT_RATE_LIMIT" envDefault:"true"`

	AllowedOrigins []string      `env:"AUTHKIT_CORS_ORIGINS" envSeparator:"," envDefault:"https://*"`
	SecureCookies  bool          `env:"AUTHKIT_SECURE_COOKIES" envDefault:"true"`
	ShutdownGrace  time.Duration `env:"AUTHKIT_SHUTDOWN_GRACE" envDefault:"10s"`
}

func loadConfig() (*envConfig, error) {
	// Missing .env is fine; the environment may be set by the supervisor.
	_ = godotenv.Load()

	cfg := &envConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// engineConfig translates the environment into the engine's Config,
// reading key material from disk for asymmetric signing.
func (c *envConfig) engineConfig() (authkit.Config, error) {
	cfg := authkit.DefaultConfig()
	cfg.Token.AccessTTL = c.AccessTTL
	cfg.Token.RefreshTTL = c.RefreshTTL
	cfg.Token.Issuer = c.Issuer
	cfg.RateLimit.Enabled = c.RateLimitEnabled

	switch c.SigningMethod {
	case "hs256":
		if c.TokenSecret == "" {
			return cfg, fmt.Errorf("AUTHKIT_TOKEN_SECRET is required for hs256")
		}
		cfg.Token.SigningMethod = token.MethodHS256
		cfg.Token.PrivateKey = []byte(c.TokenSecret)
	case "ed25519":
		if c.PrivateKeyFile == "" || c.PublicKeyFile == "" {
			return cfg, fmt.Errorf("ed25519 requires AUTHKIT_TOKEN_PRIVATE_KEY_FILE and AUTHKIT_TOKEN_PUBLIC_KEY_FILE")
		}
		priv, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read private key: %w", err)
		}
		pub, err := os.ReadFile(c.PublicKeyFile)
		if err != nil {
			return cfg, fmt.Errorf("read public key: %w", err)
		}
		cfg.Token.SigningMethod = token.MethodEd25519
		cfg.Token.PrivateKey = priv
		cfg.Token.PublicKey = pub
	default:
		return cfg, fmt.Errorf("unknown signing method %q", c.SigningMethod)
	}

	return cfg, nil
}
