package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-credential/pkg/auth"
	cerrors "github.com/tendant/simple-credential/pkg/errors"
	"github.com/tendant/simple-credential/pkg/ratelimit"
	"github.com/tendant/simple-credential/pkg/session"
)

type Handle struct {
	service      *auth.Service
	sessions     *session.Issuer
	secureCookie bool
}

type Option func(*Handle)

// WithSecureCookie marks the session cookie Secure, for HTTPS deployments.
func WithSecureCookie(secure bool) Option {
	return func(h *Handle) {
		h.secureCookie = secure
	}
}

func NewHandle(service *auth.Service, sessions *session.Issuer, opts ...Option) *Handle {
	h := &Handle{service: service, sessions: sessions}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Login handles POST /login
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Warn("Failed to decode login request", "error", err)
		renderError(w, r, cerrors.InvalidInput("request body", "malformed JSON"))
		return
	}

	result, err := h.service.Authenticate(r.Context(), auth.Credentials{
		Identifier:    req.Identifier,
		Password:      req.Password,
		TempToken:     req.TempToken,
		Remember:      req.Remember,
		DeviceID:      req.DeviceID,
		SourceAddress: ratelimit.ClientIP(r),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	h.renderLogin(w, r, result)
}

// RememberMeLogin handles POST /login/remember
func (h *Handle) RememberMeLogin(w http.ResponseWriter, r *http.Request) {
	var req RememberMeLoginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, cerrors.InvalidInput("request body", "malformed JSON"))
		return
	}
	identityID, err := uuid.Parse(req.IdentityID)
	if err != nil {
		renderError(w, r, cerrors.InvalidInput("identity_id", "not a valid id"))
		return
	}

	result, err := h.service.AutoLogin(r.Context(), auth.RememberMeCredentials{
		IdentityID:    identityID,
		DeviceID:      req.DeviceID,
		Token:         req.Token,
		SourceAddress: ratelimit.ClientIP(r),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	h.renderLogin(w, r, result)
}

func (h *Handle) renderLogin(w http.ResponseWriter, r *http.Request, result auth.Result) {
	var deviceID string
	if result.RememberMe != nil {
		deviceID = result.RememberMe.DeviceID
	}
	token, expiresAt, err := h.sessions.Issue(result.Identity.ID, result.Method, deviceID)
	if err != nil {
		slog.Error("Failed to issue session token", "identity_id", result.Identity.ID, "error", err)
		renderError(w, r, cerrors.InternalWrap(err, "failed to issue session token"))
		return
	}
	session.SetCookie(w, token, expiresAt, h.secureCookie)

	resp := LoginResponse{
		Status:          statusSuccess,
		IdentityID:      result.Identity.ID.String(),
		Method:          string(result.Method),
		SessionToken:    token,
		ExpiresAt:       expiresAt,
		PasswordExpired: result.PasswordExpired,
		TempToken:       result.TempToken,
	}
	if result.PasswordExpired {
		resp.Message = "Your password has expired. Please choose a new one."
	}
	if rm := result.RememberMe; rm != nil {
		resp.RememberMe = &RememberMeResponse{
			DeviceID:        rm.DeviceID,
			Token:           rm.Token,
			ExpiresAt:       rm.ExpiresAt,
			DeviceExpiresAt: rm.DeviceExpiresAt,
		}
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// LostPassword handles POST /password/lost. The response is the same whether
// or not the identifier belongs to an account.
func (h *Handle) LostPassword(w http.ResponseWriter, r *http.Request) {
	var req LostPasswordRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil || req.Identifier == "" {
		renderError(w, r, cerrors.InvalidInput("identifier", "is required"))
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Identifier); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{
		Status:  statusSuccess,
		Message: "If an account matches, a password reset link has been sent.",
	})
}

// ResetPassword handles POST /password/reset
func (h *Handle) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, cerrors.InvalidInput("request body", "malformed JSON"))
		return
	}
	identityID, err := uuid.Parse(req.IdentityID)
	if err != nil {
		renderError(w, r, cerrors.InvalidInput("identity_id", "not a valid id"))
		return
	}
	if req.NewPassword == "" {
		renderError(w, r, cerrors.InvalidInput("new_password", "is required"))
		return
	}

	if err := h.service.ResetPassword(r.Context(), identityID, req.Token, req.NewPassword); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Status: statusSuccess, Message: "Your password has been reset."})
}

// Logout handles POST /logout
func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	identityID, claims, ok := sessionFromContext(w, r)
	if !ok {
		return
	}
	deviceID, _ := claims["device_id"].(string)

	if err := h.service.Logout(r.Context(), identityID, deviceID); err != nil {
		renderError(w, r, err)
		return
	}
	session.ClearCookie(w, h.secureCookie)
	render.JSON(w, r, MessageResponse{Status: statusSuccess, Message: "You have been logged out."})
}

// ChangePassword handles POST /password/change
func (h *Handle) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identityID, _, ok := sessionFromContext(w, r)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, cerrors.InvalidInput("request body", "malformed JSON"))
		return
	}
	if req.NewPassword == "" {
		renderError(w, r, cerrors.InvalidInput("new_password", "is required"))
		return
	}

	if err := h.service.ChangePasswordWithCurrent(r.Context(), identityID, req.CurrentPassword, req.NewPassword); err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Status: statusSuccess, Message: "Your password has been changed."})
}

// Status handles GET /me/status
func (h *Handle) Status(w http.ResponseWriter, r *http.Request) {
	identityID, _, ok := sessionFromContext(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	locked, err := h.service.IsLockedOut(ctx, identityID)
	if err != nil {
		renderError(w, r, cerrors.InternalWrap(err, "failed to read lockout state"))
		return
	}
	expired, err := h.service.IsPasswordExpired(ctx, identityID)
	if err != nil {
		renderError(w, r, cerrors.InternalWrap(err, "failed to read password expiry"))
		return
	}
	render.JSON(w, r, StatusResponse{
		Status:          statusSuccess,
		IdentityID:      identityID.String(),
		LockedOut:       locked,
		CanLogin:        h.service.CanLogin(ctx, identityID) == nil,
		PasswordExpired: expired,
	})
}

func sessionFromContext(w http.ResponseWriter, r *http.Request) (uuid.UUID, map[string]interface{}, bool) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		renderError(w, r, cerrors.New(cerrors.ErrCodeUnauthorized, "Unauthorized"))
		return uuid.Nil, nil, false
	}
	identityID, err := session.IdentityFromClaims(claims)
	if err != nil {
		slog.Warn("Session token has no identity", "error", err)
		renderError(w, r, cerrors.New(cerrors.ErrCodeUnauthorized, "Unauthorized"))
		return uuid.Nil, nil, false
	}
	return identityID, claims, true
}

// renderError writes err as JSON with the status its code maps to. Server
// faults are logged and replaced with a fixed message.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := cerrors.GetCode(err)
	status := cerrors.MapErrorCodeToHTTPStatus(code)

	message := http.StatusText(status)
	var e *cerrors.Error
	if errors.As(err, &e) {
		message = e.Message
		if retry, ok := e.Details["retry_after"].(string); ok {
			if d, perr := time.ParseDuration(retry); perr == nil {
				w.Header().Set("Retry-After", strconv.Itoa(int(d.Round(time.Second)/time.Second)))
			}
		}
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "error", err)
		message = "An internal error occurred. Please try again later."
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Status: statusError, Code: string(code), Message: message})
}
