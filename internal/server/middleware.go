package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mkbell/discme/internal/auth"
	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/shared"
)

// SessionCookie is the cookie carrying the signed session reference.
const SessionCookie = "discme_session"

type contextKey string

const userContextKey contextKey = "user"

// UserFrom returns the authenticated user attached by [RequireUser].
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok
}

// RequestLogger logs method, path, and duration for every request.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

// RequireUser resolves the session cookie to a user and attaches it to the
// request context. Unauthenticated callers get 401; callers whose access
// token has expired get 401 with a hint to refresh.
func RequireUser(manager *auth.Manager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)

			user, err := manager.ResolveSession(r.Context(), token)
			if err != nil {
				if errors.Is(err, shared.ErrTokenExpired) {
					writeError(w, http.StatusUnauthorized, "access token expired, refresh required")
					return
				}
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Protect wraps a [Handler] so every request passes through the given
// middleware before reaching it, keeping the Routes it serves.
func Protect(handler Handler, middleware ...Middleware) Handler {
	wrapped := http.Handler(handler)
	for i := len(middleware) - 1; i >= 0; i-- {
		wrapped = middleware[i](wrapped)
	}
	return &protectedHandler{inner: wrapped, routes: handler.Routes()}
}

type protectedHandler struct {
	inner  http.Handler
	routes []string
}

func (p *protectedHandler) Routes() []string { return p.routes }

func (p *protectedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.inner.ServeHTTP(w, r)
}

func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	// the CLI and tests send the reference as a bearer token
	header := r.Header.Get("Authorization")
	if len(header) > 7 && header[:7] == "Bearer " {
		return header[7:]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
