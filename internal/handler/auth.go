package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/habit-rewards/internal/apperror"
	"github.com/sakif/habit-rewards/internal/auth"
	"github.com/sakif/habit-rewards/internal/model"
	"github.com/sakif/habit-rewards/internal/service"
)

const stateCookie = "oauth_state"

// IdentityProvider is the part of an OAuth provider the handler uses.
// *auth.GoogleProvider implements it.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*model.ExternalIdentity, error)
}

// AuthHandler manages the Google OAuth login flow and the session cookie.
//
//   - HandleGoogleLogin    -> redirect the browser to Google's consent page
//   - HandleGoogleCallback -> exchange the code, resolve the user, set the cookie
//   - HandleLogout         -> clear the cookie
//   - HandleMe             -> the logged-in user's profile
type AuthHandler struct {
	provider IdentityProvider
	auth     *service.AuthService
	ttl      time.Duration
	secure   bool
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secure marks cookies HTTPS-only and
// should be true in production.
func NewAuthHandler(provider IdentityProvider, authSvc *service.AuthService, ttl time.Duration, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		auth:     authSvc,
		ttl:      ttl,
		secure:   secure,
		logger:   logger,
	}
}

// HandleGoogleLogin redirects to Google.
//
// HTTP: GET /auth/google/login
//
// A random state is stored in a short-lived cookie and checked on callback,
// which proves the callback was started by this server (CSRF protection).
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the login.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the Google identity
//  3. Resolve the identity to the canonical profile and issue a JWT
//  4. Store the JWT in an HttpOnly cookie and redirect home
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: missing or mismatched state")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if errors.Is(err, apperror.ErrUnauthorized) {
		h.logger.Warn("auth callback: identity rejected", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if err != nil {
		h.logger.Error("auth callback: Google exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	result, err := h.auth.LoginOrRegisterGoogle(r.Context(), identity)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.String("subject", identity.Subject),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// The JWT stays technically valid until it expires; without the cookie the
// browser can no longer send it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the current user's profile.
//
// HTTP: GET /api/me (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "valid authentication required", Code: "unauthorized"})
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), session.UserID)
	if err != nil {
		h.logger.Error("HandleMe: user lookup failed", slog.String("userID", session.UserID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
