package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	authkit "github.com/halcyon-auth/authkit"
	"github.com/halcyon-auth/authkit/account"
	"github.com/halcyon-auth/authkit/mailer"
	"github.com/halcyon-auth/authkit/password"
	"github.com/halcyon-auth/authkit/token"
)

type captureMailer struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages, "no code delivered")
	return m.messages[len(m.messages)-1].Code
}

type apiHarness struct {
	server *httptest.Server
	mail   *captureMailer
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := authkit.DefaultConfig()
	cfg.Token = token.Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: token.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authkit-test",
	}
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	cfg.RateLimit.Enabled = false
	cfg.Audit.Enabled = false

	mail := &captureMailer{}
	engine, err := authkit.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(account.NewMemStore()).
		WithMailer(mail).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	router := NewRouter(engine, zap.NewNop(), Config{AllowedOrigins: []string{"*"}})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiHarness{server: server, mail: mail}
}

func (h *apiHarness) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(h.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *apiHarness) registerVerified(t *testing.T, email, pass string) {
	t.Helper()
	resp := h.post(t, "/register", map[string]string{
		"email":      email,
		"password":   pass,
		"first_name": "Ada",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = h.post(t, "/register_auth", map[string]string{
		"email": email,
		"otp":   h.mail.lastCode(t),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterLoginProfileFlow(t *testing.T) {
	h := newAPIHarness(t)
	h.registerVerified(t, "ada@example.com", "correct horse battery")

	resp := h.post(t, "/login", map[string]string{
		"email":    "ada@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hasRefreshCookie bool
	for _, c := range resp.Cookies() {
		if c.Name == refreshCookieName {
			hasRefreshCookie = c.HttpOnly
		}
	}
	assert.True(t, hasRefreshCookie, "refresh cookie missing or not HttpOnly")

	body := decodeBody(t, resp)
	assert.Equal(t, "Bearer", body["tokenType"])
	assert.Equal(t, "15m", body["expiresIn"])
	assert.Equal(t, "7d", body["refreshExpiresIn"])
	require.NotEmpty(t, body["accessToken"])
	require.NotEmpty(t, body["refreshToken"])

	req, err := http.NewRequest(http.MethodGet, h.server.URL+"/profile?email=ada@example.com", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+body["accessToken"].(string))
	profileResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, profileResp.StatusCode)
	profile := decodeBody(t, profileResp)
	assert.Equal(t, "ada@example.com", profile["email"])
	assert.Equal(t, true, profile["verified"])
}

func TestProfileRequiresBearer(t *testing.T) {
	h := newAPIHarness(t)

	resp, err := http.Get(h.server.URL + "/profile?email=ada@example.com")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "token_invalid", body["code"])
}

func TestRefreshRotationAndLogout(t *testing.T) {
	h := newAPIHarness(t)
	h.registerVerified(t, "ada@example.com", "correct horse battery")

	loginResp := h.post(t, "/login", map[string]string{
		"email":    "ada@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, loginResp.StatusCode)
	login := decodeBody(t, loginResp)
	first := login["refreshToken"].(string)

	refreshResp := h.post(t, "/refresh-token", map[string]string{"refreshToken": first})
	require.Equal(t, http.StatusOK, refreshResp.StatusCode)
	refreshed := decodeBody(t, refreshResp)
	second := refreshed["refreshToken"].(string)
	require.NotEqual(t, first, second)

	// The consumed token is dead.
	replayResp := h.post(t, "/refresh-token", map[string]string{"refreshToken": first})
	require.Equal(t, http.StatusUnauthorized, replayResp.StatusCode)
	replay := decodeBody(t, replayResp)
	assert.Equal(t, "token_revoked", replay["code"])

	logoutResp := h.post(t, "/logout", map[string]string{
		"email":        "ada@example.com",
		"refreshToken": second,
	})
	require.Equal(t, http.StatusOK, logoutResp.StatusCode)
	logoutResp.Body.Close()

	afterResp := h.post(t, "/refresh-token", map[string]string{"refreshToken": second})
	require.Equal(t, http.StatusUnauthorized, afterResp.StatusCode)
	after := decodeBody(t, afterResp)
	assert.Equal(t, "token_revoked", after["code"])
}

func TestPasswordResetEndpoints(t *testing.T) {
	h := newAPIHarness(t)
	h.registerVerified(t, "ada@example.com", "correct horse battery")

	resp := h.post(t, "/reset_pass_user_auth", map[string]string{"email": "ada@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = h.post(t, "/reset_pass_otp_auth", map[string]string{
		"email": "ada@example.com",
		"otp":   h.mail.lastCode(t),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	grant := decodeBody(t, resp)["resetToken"].(string)
	require.NotEmpty(t, grant)

	resp = h.post(t, "/reset_password", map[string]string{
		"email":       "ada@example.com",
		"newPassword": "a different long secret",
		"resetToken":  grant,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The grant cookie deletion has to target the path it was set with,
	// or browsers keep the original cookie around.
	var cleared bool
	for _, c := range resp.Cookies() {
		if c.Name == resetCookieName {
			cleared = c.MaxAge < 0
			assert.Equal(t, resetCookiePath, c.Path)
		}
	}
	assert.True(t, cleared, "reset cookie not cleared")
	resp.Body.Close()

	resp = h.post(t, "/login", map[string]string{
		"email":    "ada@example.com",
		"password": "a different long secret",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestPasswordResetUnknownEmailIndistinguishable(t *testing.T) {
	h := newAPIHarness(t)
	h.registerVerified(t, "ada@example.com", "correct horse battery")

	known := h.post(t, "/reset_pass_user_auth", map[string]string{"email": "ada@example.com"})
	unknown := h.post(t, "/reset_pass_user_auth", map[string]string{"email": "nobody@example.com"})
	require.Equal(t, known.StatusCode, unknown.StatusCode)
	assert.Equal(t, decodeBody(t, known), decodeBody(t, unknown))
}

func TestErrorMapping(t *testing.T) {
	h := newAPIHarness(t)
	h.registerVerified(t, "ada@example.com", "correct horse battery")

	dup := h.post(t, "/register", map[string]string{
		"email":      "ada@example.com",
		"password":   "another long password",
		"first_name": "Ada",
	})
	require.Equal(t, http.StatusConflict, dup.StatusCode)
	assert.Equal(t, "duplicate_account", decodeBody(t, dup)["code"])

	bad := h.post(t, "/login", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong password here",
	})
	require.Equal(t, http.StatusUnauthorized, bad.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeBody(t, bad)["code"])

	unknownField := h.post(t, "/login", map[string]string{
		"email":    "ada@example.com",
		"password": "correct horse battery",
		"extra":    "nope",
	})
	require.Equal(t, http.StatusBadRequest, unknownField.StatusCode)
	assert.Equal(t, "validation_error", decodeBody(t, unknownField)["code"])

	garbage := h.post(t, "/refresh-token", map[string]string{"refreshToken": "not.a.jwt"})
	require.Equal(t, http.StatusUnauthorized, garbage.StatusCode)
	assert.Equal(t, "token_invalid", decodeBody(t, garbage)["code"])
}

func TestResendOTPEventValidation(t *testing.T) {
	h := newAPIHarness(t)

	resp := h.post(t, "/resend_otp", map[string]string{
		"email": "ada@example.com",
		"event": "bogus",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
