package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	authkit "github.com/halcyon-auth/authkit"
)

const defaultBodyLimit = 1 << 20 // 1 MiB

// errorBody is the stable error envelope. Code values are fixed strings
// clients can switch on; Message is advisory and may change.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// decodeJSON reads a single strict JSON object into dst. Unknown fields,
// trailing data, and oversized bodies are all validation failures.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

func (h *Handler) badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: "validation_error", Message: message})
}

// writeEngineError maps the engine taxonomy to an HTTP status and stable
// code. Anything unrecognized is an internal error and gets logged.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *authkit.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:    "validation_error",
			Message: ve.Error(),
			Field:   ve.Field,
		})
		return
	}

	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, authkit.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, authkit.ErrDuplicateAccount):
		status, code = http.StatusConflict, "duplicate_account"
	case errors.Is(err, authkit.ErrAccountNotFound):
		status, code = http.StatusNotFound, "account_not_found"
	case errors.Is(err, authkit.ErrAccountNotVerified):
		status, code = http.StatusForbidden, "account_not_verified"
	case errors.Is(err, authkit.ErrAccountDisabled):
		status, code = http.StatusForbidden, "account_disabled"
	case errors.Is(err, authkit.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, authkit.ErrOTPNotFound):
		status, code = http.StatusNotFound, "otp_not_found"
	case errors.Is(err, authkit.ErrOTPExpired):
		status, code = http.StatusGone, "otp_expired"
	case errors.Is(err, authkit.ErrOTPMismatch):
		status, code = http.StatusUnauthorized, "otp_mismatch"
	case errors.Is(err, authkit.ErrOTPExhausted):
		status, code = http.StatusTooManyRequests, "otp_exhausted"
	case errors.Is(err, authkit.ErrTokenExpired):
		status, code = http.StatusUnauthorized, "token_expired"
	case errors.Is(err, authkit.ErrTokenRevoked):
		status, code = http.StatusUnauthorized, "token_revoked"
	case errors.Is(err, authkit.ErrTokenInvalid):
		status, code = http.StatusUnauthorized, "token_invalid"
	case errors.Is(err, authkit.ErrRateLimited):
		status, code = http.StatusTooManyRequests, "rate_limited"
	}

	if status == http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	writeJSON(w, status, errorBody{Code: code, Message: publicMessage(code)})
}

func publicMessage(code string) string {
	switch code {
	case "validation_error":
		return "request is malformed"
	case "duplicate_account":
		return "an account with this email already exists"
	case "account_not_found":
		return "account not found"
	case "account_not_verified":
		return "account is not verified"
	case "account_disabled":
		return "account is disabled"
	case "invalid_credentials":
		return "invalid credentials"
	case "otp_not_found":
		return "no active code; request a new one"
	case "otp_expired":
		return "code has expired; request a new one"
	case "otp_mismatch":
		return "incorrect code"
	case "otp_exhausted":
		return "too many attempts; request a new code"
	case "token_expired":
		return "token has expired"
	case "token_revoked":
		return "token has been revoked"
	case "token_invalid":
		return "token is invalid"
	case "rate_limited":
		return "too many requests; slow down"
	default:
		return "internal error"
	}
}
