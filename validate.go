package authkit

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/halcyon-auth/authkit/internal"
)

const (
	maxEmailLength     = 254
	maxNameLength      = 100
	minPasswordLength  = 10
	maxPasswordLength  = 128
	minPhoneDigits     = 7
	maxPhoneDigits     = 15
)

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return newValidationError("email", "required")
	}
	if len(email) > maxEmailLength {
		return newValidationError("email", "too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return newValidationError("email", "malformed address")
	}
	return nil
}

func validatePassword(pw string) error {
	if pw == "" {
		return newValidationError("password", "required")
	}
	if !utf8.ValidString(pw) {
		return newValidationError("password", "invalid encoding")
	}
	if len(pw) < minPasswordLength {
		return newValidationError("password", "too short")
	}
	if len(pw) > maxPasswordLength {
		return newValidationError("password", "too long")
	}
	return nil
}

func validatePhone(phone string) error {
	if phone == "" {
		return nil
	}
	digits := phone
	if strings.HasPrefix(digits, "+") {
		digits = digits[1:]
	}
	if !internal.IsNumericString(digits) {
		return newValidationError("phone", "digits only, optional leading +")
	}
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return newValidationError("phone", "invalid length")
	}
	return nil
}

func validateName(field, value string) error {
	if utf8.RuneCountInString(value) > maxNameLength {
		return newValidationError(field, "too long")
	}
	return nil
}

func validateOTPCode(code string, digits int) error {
	if code == "" {
		return newValidationError("otp", "required")
	}
	if len(code) != digits || !internal.IsNumericString(code) {
		return newValidationError("otp", "malformed code")
	}
	return nil
}
