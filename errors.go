package authkit

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the base class for input validation failures. Use
	// errors.Is against it; the concrete error is a [*ValidationError]
	// naming the offending field.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateAccount is returned when registration targets an email
	// that already has an account.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrAccountNotFound is returned by lookups that reference no account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountNotVerified is returned when an unverified account attempts
	// an operation that requires a completed registration.
	ErrAccountNotVerified = errors.New("account not verified")
	// ErrAccountDisabled is returned when a disabled account attempts to
	// authenticate.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidCredentials covers both unknown email and wrong password
	// so the two cases are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrOTPNotFound is returned when no live code exists for the account
	// and intent, including codes already consumed.
	ErrOTPNotFound = errors.New("otp not found")
	// ErrOTPExpired is returned when the code exists but its window passed.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPMismatch is returned on a wrong code with attempts remaining.
	ErrOTPMismatch = errors.New("otp mismatch")
	// ErrOTPExhausted is returned once the attempt budget is spent; the
	// code is dead regardless of what is submitted afterwards.
	ErrOTPExhausted = errors.New("otp attempts exhausted")

	// ErrTokenExpired is returned for structurally valid tokens past their
	// validity window.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for malformed, tampered, or unknown
	// tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenRevoked is returned when a refresh token's registry entry has
	// been consumed or revoked.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrRateLimited is returned when a fixed-window limit is exceeded.
	ErrRateLimited = errors.New("rate limited")
	// ErrInternal wraps backend failures that carry no caller-actionable
	// detail.
	ErrInternal = errors.New("internal error")
	// ErrEngineNotReady is returned when the engine is used before its
	// dependencies are wired.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError reports a rejected input field. It matches
// [ErrValidation] under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
