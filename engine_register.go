package authkit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-auth/authkit/account"
)

// RegisterRequest carries the inputs of a new registration. Email and
// Password are required; the profile fields are optional.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Company   string
}

// Register creates an unverified account and issues a registration code
// to its email. The account cannot log in until the code is confirmed.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if e == nil || e.accounts == nil || e.passwordHash == nil {
		return nil, ErrEngineNotReady
	}

	email := account.NormalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	if err := validatePhone(req.Phone); err != nil {
		return nil, err
	}
	if err := validateName("firstName", req.FirstName); err != nil {
		return nil, err
	}
	if err := validateName("lastName", req.LastName); err != nil {
		return nil, err
	}
	if err := validateName("companyName", req.Company); err != nil {
		return nil, err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckOTPIssue(ctx, IntentRegister, email); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.metricInc(MetricRegisterRateLimited)
				e.emitAudit(ctx, auditEventRegisterRateLimited, false, "", "", ErrRateLimited, func() map[string]string {
					return map[string]string{"identifier": email}
				})
				e.emitRateLimit(ctx, "register", func() map[string]string {
					return map[string]string{"identifier": email}
				})
				return nil, ErrRateLimited
			}
			return nil, ErrInternal
		}
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, ErrInternal
	}

	now := time.Now().UTC()
	acct := &account.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Profile: account.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
			Company:   req.Company,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, account.ErrDuplicate) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", "", ErrDuplicateAccount, func() map[string]string {
				return map[string]string{"identifier": email}
			})
			return nil, ErrDuplicateAccount
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", "", ErrInternal, nil)
		return nil, ErrInternal
	}

	if err := e.issueOTP(ctx, IntentRegister, acct); err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, acct.ID, "", ErrInternal, func() map[string]string {
			return map[string]string{"reason": "otp_issue_failed"}
		})
		return nil, ErrInternal
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, acct.ID, "", nil, func() map[string]string {
		return map[string]string{"identifier": email}
	})
	e.emitAudit(ctx, auditEventOTPIssued, true, acct.ID, "", nil, func() map[string]string {
		return map[string]string{"intent": string(IntentRegister)}
	})

	u := userFromAccount(acct)
	return &u, nil
}

// ConfirmRegistration redeems a registration code and marks the account
// verified. A consumed code is deleted; submitting it again reports
// [ErrOTPNotFound].
func (e *Engine) ConfirmRegistration(ctx context.Context, email, code string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	email = account.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validateOTPCode(code, e.config.OTP.Digits); err != nil {
		return err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckOTPVerify(ctx, IntentRegister, email); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.emitRateLimit(ctx, "verify", func() map[string]string {
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
			// Unknown emails get the same answer as consumed codes.
			e.metricInc(MetricVerifyFailure)
			e.emitAudit(ctx, auditEventVerifyFailure, false, "", "", ErrOTPNotFound, func() map[string]string {
				return map[string]string{"identifier": email}
			})
			return ErrOTPNotFound
		}
		return ErrInternal
	}

	if _, err := e.otpStore.Consume(ctx, IntentRegister, acct.ID, code, e.config.OTP.MaxAttempts); err != nil {
		switch {
		case errors.Is(err, ErrOTPExhausted):
			e.metricInc(MetricVerifyExhausted)
		default:
			e.metricInc(MetricVerifyFailure)
		}
		e.emitAudit(ctx, auditEventVerifyFailure, false, acct.ID, "", err, nil)
		if errors.Is(err, ErrOTPNotFound) || errors.Is(err, ErrOTPExpired) ||
			errors.Is(err, ErrOTPMismatch) || errors.Is(err, ErrOTPExhausted) {
			return err
		}
		return ErrInternal
	}

	if err := e.accounts.SetVerified(ctx, acct.ID, true); err != nil {
		e.emitAudit(ctx, auditEventVerifyFailure, false, acct.ID, "", ErrInternal, func() map[string]string {
			return map[string]string{"reason": "set_verified_failed"}
		})
		return ErrInternal
	}

	e.metricInc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventVerifySuccess, true, acct.ID, "", nil, nil)

	return nil
}

// ResendOTP issues a fresh registration code, superseding any earlier
// one. Unknown emails and already-verified accounts return success
// without issuing anything, so the endpoint confirms nothing about
// which emails are registered.
func (e *Engine) ResendOTP(ctx context.Context, email string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	email = account.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckOTPIssue(ctx, IntentRegister, email); err != nil {
			if errors.Is(err, ErrRateLimited) {
				e.emitRateLimit(ctx, "resend", func() map[string]string {
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
	if acct.Verified {
		e.burnIssueWork()
		return nil
	}

	if err := e.issueOTP(ctx, IntentRegister, acct); err != nil {
		return ErrInternal
	}

	e.metricInc(MetricOTPResent)
	e.emitAudit(ctx, auditEventOTPResent, true, acct.ID, "", nil, func() map[string]string {
		return map[string]string{"intent": string(IntentRegister)}
	})

	return nil
}
