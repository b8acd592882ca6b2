package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	authkit "github.com/halcyon-auth/authkit"
	"github.com/halcyon-auth/authkit/token"
)

const correlationHeader = "X-Correlation-ID"

// requestContext threads the client IP and a correlation id through the
// request context so engine audit records can be tied back to the request.
// An inbound X-Correlation-ID is honored; otherwise one is minted.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(correlationHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		w.Header().Set(correlationHeader, correlationID)

		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		ctx := authkit.WithClientIP(r.Context(), ip)
		ctx = authkit.WithCorrelationID(ctx, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("correlation_id", ww.Header().Get(correlationHeader)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

type accessClaimsContextKey struct{}

// AccessClaimsFromContext returns the verified access-token claims placed
// by the bearer guard, if the request passed through it.
func AccessClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(accessClaimsContextKey{}).(*token.Claims)
	return claims, ok
}

// requireBearer rejects requests without a valid bearer access token and
// stores the verified claims on the context for the handler.
func requireBearer(engine *authkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: "token_invalid", Message: "missing bearer token"})
				return
			}

			claims, err := engine.VerifyAccess(r.Context(), raw)
			if err != nil {
				code := "token_invalid"
				if errors.Is(err, authkit.ErrTokenExpired) {
					code = "token_expired"
				}
				writeJSON(w, http.StatusUnauthorized, errorBody{Code: code, Message: publicMessage(code)})
				return
			}

			ctx := context.WithValue(r.Context(), accessClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	tok := value[len(bearer):]
	return tok, tok != ""
}
