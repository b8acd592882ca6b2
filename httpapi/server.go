package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	authkit "github.com/halcyon-auth/authkit"
)

// Config carries the router's boundary settings. The zero value is usable
// in tests; production sets SecureCookies and pins AllowedOrigins.
type Config struct {
	AllowedOrigins []string
	BodyLimit      int64
	SecureCookies  bool
	RequestTimeout time.Duration
}

// NewRouter wires the literal endpoint contract onto a chi router.
func NewRouter(engine *authkit.Engine, log *zap.Logger, cfg Config) chi.Router {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"https://*"}
	}

	h := &Handler{engine: engine, log: log, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestContext)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", correlationHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Post("/register", h.register)
	r.Post("/register_auth", h.confirmRegistration)
	r.Post("/resend_otp", h.resendOTP)
	r.Post("/login", h.login)
	r.Post("/refresh-token", h.refresh)
	r.Post("/reset_pass_user_auth", h.requestPasswordReset)
	r.Post("/reset_pass_otp_auth", h.confirmPasswordReset)
	r.Post("/reset_password", h.completePasswordReset)
	r.Post("/logout", h.logout)

	r.Group(func(r chi.Router) {
		r.Use(requireBearer(engine))
		r.Get("/profile", h.profile)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "not_found", Message: "endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Code: "method_not_allowed", Message: "method not allowed"})
	})

	return r
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
