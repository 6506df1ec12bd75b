package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mkbell/discme/internal/auth"
	"github.com/mkbell/discme/internal/shared"
)

// stateCookie carries the anti-forgery state between /login and /callback.
const stateCookie = "discme_oauth_state"

// AuthHandler serves the browser-facing authentication routes.
// Implements the Handler interface for registration with a Router.
type AuthHandler struct {
	manager    *auth.Manager
	sessionTTL time.Duration
	logger     *log.Logger
}

// NewAuthHandler creates an AuthHandler issuing sessions with the given TTL.
func NewAuthHandler(manager *auth.Manager, sessionTTL time.Duration, logger *log.Logger) *AuthHandler {
	return &AuthHandler{manager: manager, sessionTTL: sessionTTL, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{"/", "/login", "/callback", "/refresh-token", "/logout"}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		h.handleIndex(w, r)
	case "/login":
		h.handleLogin(w, r)
	case "/callback":
		h.handleCallback(w, r)
	case "/refresh-token":
		h.handleRefresh(w, r)
	case "/logout":
		h.handleLogout(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *AuthHandler) handleIndex(w http.ResponseWriter, r *http.Request) {
	user, err := h.manager.ResolveSession(r.Context(), sessionToken(r))

	w.Header().Set("Content-Type", "text/html")

	if err != nil {
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Disc Me</title></head>
<body>
    <h1>Disc Me</h1>
    <p>Rate your saved albums, track by track.</p>
    <a href="/login">Log in with Spotify</a>
</body>
</html>
`)
		return
	}

	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Disc Me</title></head>
<body>
    <h1>Disc Me</h1>
    <p>Logged in as %s.</p>
    <a href="/api/saved-albums">Your library</a> | <a href="/logout">Log out</a>
</body>
</html>
`, user.DisplayName())
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := shared.GenerateState()
	if err != nil {
		h.logger.Error("failed to generate state", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
	})

	http.Redirect(w, r, h.manager.AuthorizationURL(state), http.StatusFound)
}

func (h *AuthHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	user, err := h.manager.CompleteCallback(r.Context(), r.URL.Query())
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrProviderDenied):
			h.logger.Warn("authorization denied", "error", err)
			http.Redirect(w, r, "/", http.StatusFound)
		case errors.Is(err, auth.ErrMissingCode):
			writeError(w, http.StatusBadRequest, "missing authorization code")
		default:
			h.logger.Error("callback failed", "error", err)
			writeError(w, http.StatusBadGateway, "authorization failed")
		}
		return
	}

	token, err := h.manager.IssueSessionToken(user)
	if err != nil {
		h.logger.Error("failed to issue session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	user, err := h.manager.SessionUser(r.Context(), sessionToken(r))
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	if _, err := h.manager.RefreshIfNeeded(r.Context(), user); err != nil {
		h.logger.Warn("token refresh failed", "user_id", user.ID(), "error", err)
		h.clearSession(w)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.clearSession(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
