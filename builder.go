package authkit

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/halcyon-auth/authkit/account"
	"github.com/halcyon-auth/authkit/mailer"
	"github.com/halcyon-auth/authkit/password"
	"github.com/halcyon-auth/authkit/registry"
	"github.com/halcyon-auth/authkit/token"
)

// Builder assembles an [Engine]. Redis and an account store are
// required; everything else has a working default.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	accounts  account.Store
	auditSink AuditSink
	mail      mailer.Mailer
	log       *zap.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store account.Store) *Builder {
	b.accounts = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMailer(m mailer.Mailer) *Builder {
	b.mail = m
	return b
}

func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	b.log = log
	return b
}

// Build validates the configuration, wires the stores, and returns a
// ready Engine. A Builder is single-use.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	cfg := b.config
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log := b.log
	if log == nil {
		log = zap.NewNop()
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		log:      log,
	}

	engine.registry = registry.NewStore(b.redis, cfg.RegistryPrefix)
	engine.otpStore = newOTPStore(b.redis, cfg.OTPPrefix)
	engine.resetGrants = newResetGrantStore(b.redis)
	engine.rateLimiter = newRateLimiter(b.redis, cfg.RateLimit)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	mail := b.mail
	if mail == nil {
		mail = mailer.NewLogMailer(log)
	}
	engine.mail = mail

	ph, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	tm, err := token.NewManager(cfg.Token)
	if err != nil {
		return nil, err
	}
	engine.tokens = tm

	b.built = true

	return engine, nil
}
