package authkit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRegisterAndConfirmFlow(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	u := te.register(t)
	if u.Verified {
		t.Fatal("fresh registration must be unverified")
	}

	// Unverified accounts cannot log in, even with correct credentials.
	if _, err := te.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrAccountNotVerified) {
		t.Fatalf("expected ErrAccountNotVerified, got %v", err)
	}

	code := te.mail.LastCode(t, IntentRegister)
	if err := te.engine.ConfirmRegistration(ctx, testEmail, code); err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}

	res := te.login(t)
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("login did not issue tokens")
	}
	if res.TokenType != "Bearer" {
		t.Fatalf("unexpected token type %q", res.TokenType)
	}
	if !res.User.Verified {
		t.Fatal("user view must reflect verification")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	te.register(t)

	_, err := te.engine.Register(context.Background(), RegisterRequest{
		Email:    "ADA@Example.com",
		Password: testPassword,
	})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	cases := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{"missing email", RegisterRequest{Password: testPassword}, "email"},
		{"malformed email", RegisterRequest{Email: "not-an-email", Password: testPassword}, "email"},
		{"short password", RegisterRequest{Email: testEmail, Password: "short"}, "password"},
		{"bad phone", RegisterRequest{Email: testEmail, Password: testPassword, Phone: "abc123"}, "phone"},
		{"long first name", RegisterRequest{Email: testEmail, Password: testPassword, FirstName: strings.Repeat("a", 101)}, "firstName"},
		{"long company", RegisterRequest{Email: testEmail, Password: testPassword, Company: strings.Repeat("a", 101)}, "companyName"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := te.engine.Register(ctx, tc.req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestConfirmWrongCodeBurnsAttempts(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.register(t)
	code := te.mail.LastCode(t, IntentRegister)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	// Four wrong guesses are mismatches, the fifth exhausts the budget.
	for i := 0; i < 4; i++ {
		if err := te.engine.ConfirmRegistration(ctx, testEmail, wrong); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("attempt %d: expected ErrOTPMismatch, got %v", i+1, err)
		}
	}
	if err := te.engine.ConfirmRegistration(ctx, testEmail, wrong); !errors.Is(err, ErrOTPExhausted) {
		t.Fatalf("expected ErrOTPExhausted, got %v", err)
	}

	// Exhaustion is terminal: even the correct code is refused now.
	if err := te.engine.ConfirmRegistration(ctx, testEmail, code); !errors.Is(err, ErrOTPExhausted) {
		t.Fatalf("expected ErrOTPExhausted for correct code after exhaustion, got %v", err)
	}
}

func TestConfirmReplay(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.register(t)
	code := te.mail.LastCode(t, IntentRegister)
	if err := te.engine.ConfirmRegistration(ctx, testEmail, code); err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}

	// The code was consumed on success; replay finds nothing.
	if err := te.engine.ConfirmRegistration(ctx, testEmail, code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound on replay, got %v", err)
	}
}

func TestConfirmExpiredCode(t *testing.T) {
	cfg := engineTestConfig()
	cfg.OTP.TTL = 50 * time.Millisecond
	te := newTestEngine(t, cfg)
	ctx := context.Background()

	te.register(t)
	code := te.mail.LastCode(t, IntentRegister)

	// The test redis clock is frozen, so the key survives its TTL and the
	// record's own millisecond expiry is what rejects the code.
	time.Sleep(100 * time.Millisecond)

	if err := te.engine.ConfirmRegistration(ctx, testEmail, code); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
	// The expired record was purged; the next attempt sees nothing.
	if err := te.engine.ConfirmRegistration(ctx, testEmail, code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound after expiry purge, got %v", err)
	}
}

func TestConfirmCodeEvictedByRedis(t *testing.T) {
	cfg := engineTestConfig()
	te := newTestEngine(t, cfg)
	ctx := context.Background()

	te.register(t)
	code := te.mail.LastCode(t, IntentRegister)

	// In production the key's Redis TTL evicts it at expiry; a submission
	// after that sees no record at all.
	te.redis.FastForward(cfg.OTP.TTL + time.Second)

	if err := te.engine.ConfirmRegistration(ctx, testEmail, code); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("expected ErrOTPNotFound after eviction, got %v", err)
	}
}

func TestResendSupersedesOldCode(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.register(t)
	oldCode := te.mail.LastCode(t, IntentRegister)

	newCode := oldCode
	for i := 0; i < 5 && newCode == oldCode; i++ {
		if err := te.engine.ResendOTP(ctx, testEmail); err != nil {
			t.Fatalf("ResendOTP failed: %v", err)
		}
		newCode = te.mail.LastCode(t, IntentRegister)
	}
	if newCode == oldCode {
		t.Skip("random codes collided repeatedly")
	}

	// The superseded code must not verify.
	if err := te.engine.ConfirmRegistration(ctx, testEmail, oldCode); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected ErrOTPMismatch for superseded code, got %v", err)
	}
	if err := te.engine.ConfirmRegistration(ctx, testEmail, newCode); err != nil {
		t.Fatalf("newest code rejected: %v", err)
	}
}

func TestResendEnumerationSafe(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	// Unknown email: silent success, no delivery.
	if err := te.engine.ResendOTP(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("ResendOTP for unknown email failed: %v", err)
	}

	// Verified account: silent success, no new delivery.
	te.registerVerified(t)
	before := len(te.mail.messages)
	if err := te.engine.ResendOTP(ctx, testEmail); err != nil {
		t.Fatalf("ResendOTP for verified account failed: %v", err)
	}
	if len(te.mail.messages) != before {
		t.Fatal("verified account received a code")
	}
}

func TestRegisterRateLimited(t *testing.T) {
	cfg := engineTestConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.OTPIssueMax = 2
	cfg.RateLimit.OTPIssueWindow = time.Minute
	te := newTestEngine(t, cfg)
	ctx := context.Background()

	te.register(t)
	if err := te.engine.ResendOTP(ctx, testEmail); err != nil {
		t.Fatalf("second issue failed: %v", err)
	}
	if err := te.engine.ResendOTP(ctx, testEmail); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
