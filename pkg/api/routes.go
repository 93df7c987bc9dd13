package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/tendant/simple-credential/pkg/session"
)

// RouterConfig holds what SetupRoutes mounts.
type RouterConfig struct {
	Handle    *Handle
	TokenAuth *jwtauth.JWTAuth

	// Throttle, when set, wraps the unauthenticated endpoints.
	Throttle func(http.Handler) http.Handler
}

// TokenFromSessionCookie reads the session token set at login.
func TokenFromSessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SetupRoutes mounts the credential endpoints on router.
func SetupRoutes(router chi.Router, cfg RouterConfig) {
	h := cfg.Handle

	router.Group(func(r chi.Router) {
		if cfg.Throttle != nil {
			r.Use(cfg.Throttle)
		}
		r.Post("/login", h.Login)
		r.Post("/login/remember", h.RememberMeLogin)
		r.Post("/password/lost", h.LostPassword)
		r.Post("/password/reset", h.ResetPassword)
	})

	router.Group(func(r chi.Router) {
		r.Use(jwtauth.Verify(cfg.TokenAuth, jwtauth.TokenFromHeader, TokenFromSessionCookie))
		r.Use(jwtauth.Authenticator(cfg.TokenAuth))
		r.Post("/logout", h.Logout)
		r.Post("/password/change", h.ChangePassword)
		r.Get("/me/status", h.Status)
	})
}

// Handler returns a router serving the credential endpoints.
func Handler(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	SetupRoutes(r, cfg)
	return r
}
