package authkit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon-auth/authkit/account"
	"github.com/halcyon-auth/authkit/mailer"
	"github.com/halcyon-auth/authkit/password"
	"github.com/halcyon-auth/authkit/registry"
	"github.com/halcyon-auth/authkit/token"
)

// Engine is the account and session lifecycle core. Construct it with
// [New]; all fields are wired once and treated as immutable afterwards.
type Engine struct {
	config       Config
	accounts     account.Store
	registry     *registry.Store
	otpStore     *otpStore
	resetGrants  *resetGrantStore
	rateLimiter  *rateLimiter
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	tokens       *token.Manager
	mail         mailer.Mailer
	log          *zap.Logger
}

// User is the caller-facing view of an account. It never carries the
// password hash.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoginResult bundles a fresh token pair with the authenticated user.
type LoginResult struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	User             User
}

func userFromAccount(a *account.Account) User {
	return User{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.Profile.FirstName,
		LastName:  a.Profile.LastName,
		Phone:     a.Profile.Phone,
		Company:   a.Profile.Company,
		Verified:  a.Verified,
		CreatedAt: a.CreatedAt,
	}
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were shed under load.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// AccessTTL returns the configured access-token lifetime.
func (e *Engine) AccessTTL() time.Duration { return e.tokens.AccessTTL() }

// RefreshTTL returns the configured refresh-token lifetime.
func (e *Engine) RefreshTTL() time.Duration { return e.tokens.RefreshTTL() }

// ResetGrantTTL returns the lifetime of a password-reset grant.
func (e *Engine) ResetGrantTTL() time.Duration { return e.config.PasswordReset.GrantTTL }

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login authenticates an email/password pair and issues a token pair.
// Unknown emails and wrong passwords are indistinguishable; account
// state checks run only after the password verifies, so the verified and
// disabled flags leak nothing to guessers.
func (e *Engine) Login(ctx context.Context, email, pw string) (*LoginResult, error) {
	if e == nil || e.accounts == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	email = account.NormalizeEmail(email)
	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", ErrRateLimited, func() map[string]string {
					return map[string]string{"identifier": email}
				})
				e.emitRateLimit(ctx, "login", func() map[string]string {
					return map[string]string{"identifier": email}
				})
				return nil, ErrRateLimited
			}
			return nil, ErrInternal
		}
	}

	if pw == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": email, "reason": "empty_password"}
		})
		return nil, ErrInvalidCredentials
	}

	acct, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"identifier": email, "reason": "unknown_email"}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, ErrInternal
	}

	ok, err := e.passwordHash.Verify(pw, acct.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": email, "reason": "password_mismatch"}
		})
		return nil, ErrInvalidCredentials
	}

	if acct.Disabled {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, "", ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}
	if !acct.Verified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, "", ErrAccountNotVerified, nil)
		return nil, ErrAccountNotVerified
	}

	if needsUpgrade, upErr := e.passwordHash.NeedsUpgrade(acct.PasswordHash); upErr == nil && needsUpgrade {
		if upgraded, hashErr := e.passwordHash.Hash(pw); hashErr == nil {
			// Rehash is best-effort and must not block a successful login.
			if updErr := e.accounts.UpdatePasswordHash(ctx, acct.ID, upgraded); updErr != nil {
				e.log.Warn("password hash upgrade failed", zap.String("account_id", acct.ID))
			}
		}
	}
	pw = ""

	pair, err := e.issuePair(ctx, acct.ID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, "", err, func() map[string]string {
			return map[string]string{"reason": "issue_pair_failed"}
		})
		return nil, ErrInternal
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acct.ID, pair.RefreshTokenID, nil, func() map[string]string {
		return map[string]string{"identifier": email}
	})

	return &LoginResult{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        pair.TokenType,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             userFromAccount(acct),
	}, nil
}

// Refresh rotates a refresh token: the presented token is consumed in
// the registry and a fresh pair is issued. Of any set of concurrent
// calls with the same token, exactly one wins; the rest see
// [ErrTokenRevoked]. Consumed entries stay in the registry until their
// natural expiry so later replays also classify as revoked.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if e == nil || e.registry == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		mapped := ErrTokenInvalid
		if errors.Is(err, token.ErrExpired) {
			mapped = ErrTokenExpired
		}
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", mapped, func() map[string]string {
			return map[string]string{"reason": "verify_failed"}
		})
		return nil, mapped
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, claims.ID); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.metricInc(MetricRefreshRateLimited)
				e.emitAudit(ctx, auditEventRefreshRateLimited, false, claims.AccountID, claims.ID, ErrRateLimited, nil)
				e.emitRateLimit(ctx, "refresh", func() map[string]string {
					return map[string]string{"token_id": claims.ID}
				})
				return nil, ErrRateLimited
			}
			return nil, ErrInternal
		}
	}

	entry, err := e.registry.Consume(ctx, claims.ID)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrRevoked):
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, claims.AccountID, claims.ID, ErrTokenRevoked, nil)
			return nil, ErrTokenRevoked
		case errors.Is(err, registry.ErrExpired):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.AccountID, claims.ID, ErrTokenExpired, nil)
			return nil, ErrTokenExpired
		case errors.Is(err, registry.ErrNotFound):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.AccountID, claims.ID, ErrTokenInvalid, func() map[string]string {
				return map[string]string{"reason": "unknown_token"}
			})
			return nil, ErrTokenInvalid
		default:
			return nil, ErrInternal
		}
	}

	if entry.AccountID != claims.AccountID {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.AccountID, claims.ID, ErrTokenInvalid, func() map[string]string {
			return map[string]string{"reason": "account_mismatch"}
		})
		return nil, ErrTokenInvalid
	}

	acct, err := e.accounts.FindByID(ctx, entry.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, entry.AccountID, claims.ID, ErrTokenInvalid, func() map[string]string {
				return map[string]string{"reason": "account_gone"}
			})
			return nil, ErrTokenInvalid
		}
		return nil, ErrInternal
	}
	if acct.Disabled {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, acct.ID, claims.ID, ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	pair, err := e.issuePair(ctx, acct.ID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, acct.ID, claims.ID, err, func() map[string]string {
			return map[string]string{"reason": "issue_pair_failed"}
		})
		return nil, ErrInternal
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, acct.ID, pair.RefreshTokenID, nil, func() map[string]string {
		return map[string]string{"rotated_from": claims.ID}
	})

	return &LoginResult{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		TokenType:        pair.TokenType,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             userFromAccount(acct),
	}, nil
}

// VerifyAccess validates an access token by signature and expiry alone.
// No storage is consulted, which is what keeps access checks cheap; the
// trade-off is that revocation only bites at the refresh boundary.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (*token.Claims, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	_ = ctx

	claims, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Logout revokes every refresh token belonging to the presented token's
// account. The presented token must verify; its own registry entry is
// covered by the account-wide sweep.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.registry == nil {
		return ErrEngineNotReady
	}

	claims, err := e.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		mapped := ErrTokenInvalid
		if errors.Is(err, token.ErrExpired) {
			mapped = ErrTokenExpired
		}
		e.emitAudit(ctx, auditEventLogout, false, "", "", mapped, nil)
		return mapped
	}

	revoked, err := e.registry.RevokeAllForAccount(ctx, claims.AccountID)
	if err != nil {
		e.emitAudit(ctx, auditEventLogout, false, claims.AccountID, claims.ID, ErrInternal, nil)
		return ErrInternal
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, claims.AccountID, claims.ID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(revoked)}
	})

	return nil
}

// RevokeSessions revokes every live refresh token for an account without
// requiring a token in hand. Used on password changes and by operators.
func (e *Engine) RevokeSessions(ctx context.Context, accountID string) (int, error) {
	if e == nil || e.registry == nil {
		return 0, ErrEngineNotReady
	}

	revoked, err := e.registry.RevokeAllForAccount(ctx, accountID)
	if err != nil {
		return 0, ErrInternal
	}

	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, auditEventRevokeAll, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(revoked)}
	})

	return revoked, nil
}

// Profile returns the caller-facing view of an account by email.
func (e *Engine) Profile(ctx context.Context, email string) (*User, error) {
	if e == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}
	if err := validateEmail(account.NormalizeEmail(email)); err != nil {
		return nil, err
	}

	acct, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, ErrInternal
	}

	u := userFromAccount(acct)
	return &u, nil
}

// issuePair signs a fresh pair and registers the refresh half before it
// is released to the caller.
func (e *Engine) issuePair(ctx context.Context, accountID string) (*token.Pair, error) {
	pair, err := e.tokens.IssuePair(accountID)
	if err != nil {
		return nil, err
	}

	entry := &registry.Entry{
		TokenID:   pair.RefreshTokenID,
		AccountID: accountID,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: pair.RefreshExpiresAt.Unix(),
	}
	if err := e.registry.Register(ctx, entry, e.tokens.RefreshTTL()); err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenIssued)
	return pair, nil
}
