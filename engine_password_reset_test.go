package authkit

import (
	"context"
	"errors"
	"testing"
)

const testNewPassword = "a different long secret"

func (te *testEngine) resetGrant(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	if err := te.engine.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	grant, err := te.engine.ConfirmPasswordReset(ctx, testEmail, te.mail.LastCode(t, IntentPasswordReset))
	if err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}
	return grant
}

func TestPasswordResetFlow(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.registerVerified(t)
	before := te.login(t)

	grant := te.resetGrant(t)
	if err := te.engine.CompletePasswordReset(ctx, grant, testNewPassword); err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}

	// Old password dead, new one works.
	if _, err := te.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := te.engine.Login(ctx, testEmail, testNewPassword); err != nil {
		t.Fatalf("new password login failed: %v", err)
	}

	// Sessions issued before the reset are revoked.
	if _, err := te.engine.Refresh(ctx, before.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("pre-reset refresh token: expected ErrTokenRevoked, got %v", err)
	}
}

func TestPasswordResetRequestEnumerationSafe(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.registerVerified(t)
	issued := len(te.mail.messages)

	if err := te.engine.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email: expected silent nil, got %v", err)
	}
	if len(te.mail.messages) != issued {
		t.Fatal("reset code delivered for unknown account")
	}
}

func TestPasswordResetUnverifiedAccountSilent(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.register(t)
	issued := len(te.mail.messages)

	if err := te.engine.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("unverified account: expected silent nil, got %v", err)
	}
	if len(te.mail.messages) != issued {
		t.Fatal("reset code delivered for unverified account")
	}
}

func TestPasswordResetGrantSingleUse(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.registerVerified(t)
	grant := te.resetGrant(t)

	if err := te.engine.CompletePasswordReset(ctx, grant, testNewPassword); err != nil {
		t.Fatalf("CompletePasswordReset failed: %v", err)
	}
	if err := te.engine.CompletePasswordReset(ctx, grant, "yet another secret"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("grant replay: expected ErrTokenInvalid, got %v", err)
	}
}

func TestPasswordResetWrongCodeBurnsAttempts(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.registerVerified(t)
	if err := te.engine.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	code := te.mail.LastCode(t, IntentPasswordReset)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	for i := 0; i < 4; i++ {
		if _, err := te.engine.ConfirmPasswordReset(ctx, testEmail, wrong); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("attempt %d: expected ErrOTPMismatch, got %v", i+1, err)
		}
	}
	if _, err := te.engine.ConfirmPasswordReset(ctx, testEmail, wrong); !errors.Is(err, ErrOTPExhausted) {
		t.Fatalf("expected ErrOTPExhausted, got %v", err)
	}
	// Exhaustion is terminal, even with the right code.
	if _, err := te.engine.ConfirmPasswordReset(ctx, testEmail, code); !errors.Is(err, ErrOTPExhausted) {
		t.Fatalf("correct code after exhaustion: expected ErrOTPExhausted, got %v", err)
	}
}

func TestPasswordResetBadNewPasswordPreservesGrant(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.registerVerified(t)
	grant := te.resetGrant(t)

	if err := te.engine.CompletePasswordReset(ctx, grant, "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	// The grant survives a validation failure.
	if err := te.engine.CompletePasswordReset(ctx, grant, testNewPassword); err != nil {
		t.Fatalf("CompletePasswordReset after validation failure: %v", err)
	}
}
