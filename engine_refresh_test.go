package authkit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRefreshRotation(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.registerVerified(t)
	first := te.login(t)

	second, err := te.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}
	if second.AccessToken == "" {
		t.Fatal("rotation returned empty access token")
	}

	// The consumed token is dead; the rotated one still works.
	if _, err := te.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("replay of consumed token: expected ErrTokenRevoked, got %v", err)
	}
	third, err := te.engine.Refresh(ctx, second.RefreshToken)
	if err != nil {
		t.Fatalf("second rotation failed: %v", err)
	}
	if third.RefreshToken == second.RefreshToken {
		t.Fatal("second rotation returned the same refresh token")
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())

	if _, err := te.engine.Refresh(context.Background(), "not.a.jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRefreshAccessTokenRejected(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())

	te.registerVerified(t)
	res := te.login(t)

	if _, err := te.engine.Refresh(context.Background(), res.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token, got %v", err)
	}
}

func TestLogoutRevokesAllDevices(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	te.registerVerified(t)
	deviceA := te.login(t)
	deviceB := te.login(t)

	if err := te.engine.Logout(ctx, deviceA.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := te.engine.Refresh(ctx, deviceA.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("device A after logout: expected ErrTokenRevoked, got %v", err)
	}
	if _, err := te.engine.Refresh(ctx, deviceB.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("device B after logout: expected ErrTokenRevoked, got %v", err)
	}

	// Access tokens are stateless; one still within TTL keeps verifying,
	// it just can no longer be renewed.
	if _, err := te.engine.VerifyAccess(ctx, deviceA.AccessToken); err != nil {
		t.Fatalf("access token after logout: %v", err)
	}
}

func TestLogoutGarbageToken(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())

	if err := te.engine.Logout(context.Background(), "garbage"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRevokeSessions(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	u := te.registerVerified(t)
	res := te.login(t)

	revoked, err := te.engine.RevokeSessions(ctx, u.ID)
	if err != nil {
		t.Fatalf("RevokeSessions failed: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("revoked = %d, want 1", revoked)
	}

	if _, err := te.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}
}

func TestRefreshDisabledAccount(t *testing.T) {
	te := newTestEngine(t, engineTestConfig())
	ctx := context.Background()

	u := te.registerVerified(t)
	res := te.login(t)

	if err := te.accounts.SetDisabled(ctx, u.ID, true); err != nil {
		t.Fatalf("SetDisabled failed: %v", err)
	}

	if _, err := te.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestRefreshRateLimited(t *testing.T) {
	cfg := engineTestConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RefreshMax = 1
	cfg.RateLimit.RefreshWindow = time.Minute
	te := newTestEngine(t, cfg)
	ctx := context.Background()

	te.registerVerified(t)
	res := te.login(t)

	// The window is keyed by token ID, so re-presenting the same token
	// trips the limiter before the registry is consulted.
	if _, err := te.engine.Refresh(ctx, res.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := te.engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
