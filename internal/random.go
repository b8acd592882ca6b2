package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const OTPSaltSize = 16

// NewOTP generates a uniformly random numeric code of the requested width.
// Each digit is drawn independently so the code keeps leading zeros.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewOTPSalt returns a fresh random salt for hashing a one-time code.
func NewOTPSalt() ([OTPSaltSize]byte, error) {
	var salt [OTPSaltSize]byte
	_, err := rand.Read(salt[:])
	return salt, err
}

// HashOTP computes the stored digest for a one-time code: sha256(salt || code).
// The plaintext code is never persisted.
func HashOTP(salt [OTPSaltSize]byte, code string) [32]byte {
	buf := make([]byte, 0, OTPSaltSize+len(code))
	buf = append(buf, salt[:]...)
	buf = append(buf, code...)
	return sha256.Sum256(buf)
}

// IsNumericString reports whether s consists only of ASCII digits.
func IsNumericString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
