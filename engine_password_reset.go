package authkit

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/halcyon-auth/authkit/account"
)

// RequestPasswordReset issues a reset code to the account's email.
// Unknown and unverified emails return success without issuing, so the
// endpoint confirms nothing about which emails are registered.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	email = account.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckOTPIssue(ctx, IntentPasswordReset, email); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.emitRateLimit(ctx, "password_reset_request", func() map[string]string {
					return map[string]string{"identifier": email}
				})
				return ErrRateLimited
			}
			return ErrInternal
		}
	}

	acct, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			e.burnIssueWork()
			return nil
		}
		return ErrInternal
	}
	if !acct.Verified || acct.Disabled {
		e.burnIssueWork()
		return nil
	}

	if err := e.issueOTP(ctx, IntentPasswordReset, acct); err != nil {
		return ErrInternal
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, acct.ID, "", nil, nil)

	return nil
}

// ConfirmPasswordReset redeems a reset code and mints a short-lived
// single-use grant. The grant, not the code, authorizes the actual
// password change in [Engine.CompletePasswordReset].
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, code string) (string, error) {
	if e == nil || e.accounts == nil {
		return "", ErrEngineNotReady
	}

	email = account.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if err := validateOTPCode(code, e.config.OTP.Digits); err != nil {
		return "", err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckOTPVerify(ctx, IntentPasswordReset, email); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.emitRateLimit(ctx, "password_reset_confirm", func() map[string]string {
					return map[string]string{"identifier": email}
				})
				return "", ErrRateLimited
			}
			return "", ErrInternal
		}
	}

	acct, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", ErrOTPNotFound, func() map[string]string {
				return map[string]string{"identifier": email}
			})
			return "", ErrOTPNotFound
		}
		return "", ErrInternal
	}

	if _, err := e.otpStore.Consume(ctx, IntentPasswordReset, acct.ID, code, e.config.OTP.MaxAttempts); err != nil {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, acct.ID, "", err, nil)
		if errors.Is(err, ErrOTPNotFound) || errors.Is(err, ErrOTPExpired) ||
			errors.Is(err, ErrOTPMismatch) || errors.Is(err, ErrOTPExhausted) {
			return "", err
		}
		return "", ErrInternal
	}

	grantID := uuid.NewString()
	if err := e.resetGrants.Save(ctx, grantID, acct.ID, e.config.PasswordReset.GrantTTL); err != nil {
		return "", ErrInternal
	}

	e.metricInc(MetricPasswordResetConfirm)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, acct.ID, "", nil, nil)

	return grantID, nil
}

// CompletePasswordReset redeems a grant, installs the new password, and
// revokes every live refresh token for the account. Sessions on other
// devices die at their next refresh.
func (e *Engine) CompletePasswordReset(ctx context.Context, grantID, newPassword string) error {
	if e == nil || e.accounts == nil || e.passwordHash == nil {
		return ErrEngineNotReady
	}

	if grantID == "" {
		return ErrTokenInvalid
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	accountID, err := e.resetGrants.Consume(ctx, grantID)
	if err != nil {
		if errors.Is(err, errResetGrantNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, "", "", ErrTokenInvalid, func() map[string]string {
				return map[string]string{"reason": "grant_not_found"}
			})
			return ErrTokenInvalid
		}
		return ErrInternal
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return ErrInternal
	}

	if err := e.accounts.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetFailure, false, accountID, "", ErrTokenInvalid, func() map[string]string {
				return map[string]string{"reason": "account_gone"}
			})
			return ErrTokenInvalid
		}
		return ErrInternal
	}

	if _, err := e.registry.RevokeAllForAccount(ctx, accountID); err != nil {
		// The password is already changed; surface the revocation failure
		// so the caller can retry the sweep.
		e.emitAudit(ctx, auditEventPasswordResetFailure, false, accountID, "", ErrInternal, func() map[string]string {
			return map[string]string{"reason": "revoke_all_failed"}
		})
		return ErrInternal
	}

	e.metricInc(MetricPasswordResetComplete)
	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, auditEventPasswordResetComplete, true, accountID, "", nil, nil)

	return nil
}
