package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	authkit "github.com/halcyon-auth/authkit"
)

const (
	refreshCookieName = "authkit_refresh"
	resetCookieName   = "authkit_reset"
	resetCookiePath   = "/reset_password"
)

// Handler holds the engine and per-router settings shared by all routes.
type Handler struct {
	engine *authkit.Engine
	log    *zap.Logger
	cfg    Config
}

type registerRequest struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"companyName"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	user, err := h.engine.Register(r.Context(), authkit.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Company:   req.Company,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "verification code sent",
		"user":    user,
	})
}

type confirmRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (h *Handler) confirmRegistration(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	if err := h.engine.ConfirmRegistration(r.Context(), req.Email, req.OTP); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "account verified"})
}

type resendRequest struct {
	Email string `json:"email"`
	Event string `json:"event"`
}

func (h *Handler) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	var err error
	switch req.Event {
	case "register":
		err = h.engine.ResendOTP(r.Context(), req.Email)
	case "reset_password":
		err = h.engine.RequestPasswordReset(r.Context(), req.Email)
	default:
		h.badRequest(w, "event must be register or reset_password")
		return
	}
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "if the account is eligible, a code has been sent"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	TokenType        string       `json:"tokenType"`
	ExpiresIn        string       `json:"expiresIn"`
	RefreshExpiresIn string       `json:"refreshExpiresIn"`
	User             authkit.User `json:"user"`
}

func (h *Handler) tokenResponseFrom(res *authkit.LoginResult) tokenResponse {
	return tokenResponse{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		TokenType:        res.TokenType,
		ExpiresIn:        formatTTL(h.engine.AccessTTL()),
		RefreshExpiresIn: formatTTL(h.engine.RefreshTTL()),
		User:             res.User,
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.setRefreshCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, h.tokenResponseFrom(res))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	raw := req.RefreshToken
	if raw == "" {
		raw = cookieValue(r, refreshCookieName)
	}
	if raw == "" {
		h.badRequest(w, "refreshToken is required")
		return
	}

	res, err := h.engine.Refresh(r.Context(), raw)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.setRefreshCookie(w, res.RefreshToken, res.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, h.tokenResponseFrom(res))
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	user, err := h.engine.Profile(r.Context(), email)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type resetRequestBody struct {
	Email string `json:"email"`
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequestBody
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "if the account is eligible, a code has been sent"})
}

func (h *Handler) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	grant, err := h.engine.ConfirmPasswordReset(r.Context(), req.Email, req.OTP)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.setResetCookie(w, grant)
	writeJSON(w, http.StatusOK, map[string]string{"resetToken": grant})
}

type completeResetRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
	ResetToken  string `json:"resetToken"`
}

func (h *Handler) completePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req completeResetRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	grant := req.ResetToken
	if grant == "" {
		grant = cookieValue(r, resetCookieName)
	}
	if grant == "" {
		h.badRequest(w, "resetToken is required")
		return
	}

	if err := h.engine.CompletePasswordReset(r.Context(), grant, req.NewPassword); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.clearCookie(w, resetCookieName, resetCookiePath)
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

type logoutRequest struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(w, r, h.cfg.BodyLimit, &req); err != nil {
		h.badRequest(w, "invalid request body")
		return
	}

	raw := req.RefreshToken
	if raw == "" {
		raw = cookieValue(r, refreshCookieName)
	}
	if raw == "" {
		h.badRequest(w, "refreshToken is required")
		return
	}

	if err := h.engine.Logout(r.Context(), raw); err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.clearCookie(w, refreshCookieName, "/")
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) setResetCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     resetCookieName,
		Value:    value,
		Path:     resetCookiePath,
		MaxAge:   int(h.engine.ResetGrantTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearCookie must use the same path the cookie was set with; browsers
// match deletions by (name, domain, path).
func (h *Handler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// formatTTL renders a duration the way API clients expect: whole days as
// "7d", otherwise Go's duration string with zero tails trimmed ("15m").
func formatTTL(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	}
	s := d.String()
	for _, tail := range []string{"0s", "0m"} {
		if len(s) > len(tail) && s[len(s)-len(tail):] == tail {
			s = s[:len(s)-len(tail)]
		}
	}
	return s
}
