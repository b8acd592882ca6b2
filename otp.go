package authkit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/halcyon-auth/authkit/account"
	"github.com/halcyon-auth/authkit/internal"
	"github.com/halcyon-auth/authkit/mailer"
)

// issueOTP generates, stores, and dispatches a one-time code for the
// account under the given intent. Saving overwrites any earlier live
// code for the same (account, intent), so the newest code is the only
// one that verifies. Delivery failure is logged, never returned: the
// code is live and the resend flow covers lost mail.
func (e *Engine) issueOTP(ctx context.Context, intent OTPIntent, acct *account.Account) error {
	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return err
	}
	salt, err := internal.NewOTPSalt()
	if err != nil {
		return err
	}

	record := &otpRecord{
		AccountID: acct.ID,
		Salt:      salt,
		CodeHash:  internal.HashOTP(salt, code),
		ExpiresAt: time.Now().Add(e.config.OTP.TTL).UnixMilli(),
	}
	if err := e.otpStore.Save(ctx, intent, record, e.config.OTP.TTL); err != nil {
		return err
	}

	e.metricInc(MetricOTPIssued)

	if e.mail != nil {
		msg := mailer.Message{
			Recipient: acct.Email,
			Code:      code,
			Intent:    string(intent),
		}
		if err := e.mail.Send(ctx, msg); err != nil {
			e.log.Warn("otp delivery failed",
				zap.String("account_id", acct.ID),
				zap.String("intent", string(intent)),
			)
		}
	}

	return nil
}

// burnIssueWork performs the generate-and-hash work of issueOTP without
// storing or sending anything. Flows that must answer identically for
// unknown accounts call it so the ineligible path costs about the same
// as the real one.
func (e *Engine) burnIssueWork() {
	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return
	}
	salt, err := internal.NewOTPSalt()
	if err != nil {
		return
	}
	_ = internal.HashOTP(salt, code)
}
