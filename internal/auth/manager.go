// package auth manages the OAuth authorization-code dance and the signed
// session references handed to browsers and the CLI.
package auth

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/services"
	"github.com/mkbell/discme/internal/shared"
)

// UserStore is the slice of user persistence the manager needs.
type UserStore interface {
	Get(id string) (*models.User, error)
	GetBySpotifyID(spotifyID string) (*models.User, error)
	Upsert(user *models.User) (*models.User, error)
	UpdateTokens(user *models.User) error
}

// Manager owns the authorization-code flow, session issuance, and token
// refresh for all users.
type Manager struct {
	users   UserStore
	catalog services.Catalog
	secret  []byte
	ttl     time.Duration
	logger  *log.Logger

	mu           sync.Mutex
	refreshLocks map[string]*sync.Mutex
}

// NewManager creates a Manager. secret signs session tokens; ttl bounds how
// long a session reference stays valid.
func NewManager(users UserStore, catalog services.Catalog, secret string, ttl time.Duration, logger *log.Logger) *Manager {
	return &Manager{
		users:        users,
		catalog:      catalog,
		secret:       []byte(secret),
		ttl:          ttl,
		logger:       logger,
		refreshLocks: make(map[string]*sync.Mutex),
	}
}

// AuthorizationURL returns the provider consent URL for the given state.
func (m *Manager) AuthorizationURL(state string) string {
	return m.catalog.AuthorizationURL(state)
}

// CompleteCallback finishes the authorization-code dance from the provider's
// redirect parameters: exchange the code, fetch the profile, and upsert the
// user keyed by provider identity. Repeating the callback for the same
// identity updates the existing user rather than creating a second one.
func (m *Manager) CompleteCallback(ctx context.Context, params url.Values) (*models.User, error) {
	if denied := params.Get("error"); denied != "" {
		return nil, fmt.Errorf("%w: %s", ErrProviderDenied, denied)
	}

	code := params.Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}

	grant, err := m.catalog.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	profile, err := m.catalog.Profile(ctx, grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFetchFailed, err)
	}

	displayName := profile.DisplayName
	if displayName == "" {
		displayName = profile.ID
	}

	user := models.NewUser(0, profile.ID, displayName)
	user.SetEmail(profile.Email)
	user.SetProfileURL(profile.ProfileURL)
	user.SetTokens(grant.AccessToken, grant.RefreshToken, time.Now().Add(time.Duration(grant.ExpiresIn)*time.Second))

	saved, err := m.users.Upsert(user)
	if err != nil {
		return nil, fmt.Errorf("failed to persist user: %w", err)
	}

	m.logger.Info("completed authorization", "spotify_id", saved.SpotifyID(), "user_id", saved.ID())

	return saved, nil
}

// IssueSessionToken returns a signed session reference for the user. The
// reference carries only the internal user id, never provider tokens.
func (m *Manager) IssueSessionToken(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

func (m *Manager) parseSessionToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid session token", shared.ErrNotAuthenticated)
	}

	return claims.Subject, nil
}

// ResolveSession maps a session reference to its authenticated user. The
// caller is unauthenticated when the reference is missing or invalid, when
// the user is gone, or when the stored access token has reached its expiry
// instant. The expiry instant itself counts as expired.
func (m *Manager) ResolveSession(ctx context.Context, tokenString string) (*models.User, error) {
	if tokenString == "" {
		return nil, shared.ErrNotAuthenticated
	}

	userID, err := m.parseSessionToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := m.users.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown session user", shared.ErrNotAuthenticated)
	}

	if !user.TokenValid(time.Now()) {
		return nil, fmt.Errorf("%w: access token expired", shared.ErrTokenExpired)
	}

	return user, nil
}

// SessionUser maps a session reference to its user without checking the
// provider token's validity. The refresh handler needs the user even when
// the access token is already stale.
func (m *Manager) SessionUser(ctx context.Context, tokenString string) (*models.User, error) {
	if tokenString == "" {
		return nil, shared.ErrNotAuthenticated
	}

	userID, err := m.parseSessionToken(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := m.users.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown session user", shared.ErrNotAuthenticated)
	}

	return user, nil
}

func (m *Manager) refreshLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.refreshLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.refreshLocks[userID] = lock
	}

	return lock
}

// RefreshIfNeeded ensures the user's access token is valid, refreshing it
// against the provider when it isn't. Refreshes for the same user are
// serialized; after acquiring the lock the user is re-read so a refresh that
// raced ahead wins and no second provider call is made.
func (m *Manager) RefreshIfNeeded(ctx context.Context, user *models.User) (*models.User, error) {
	now := time.Now()
	if user.TokenValid(now) {
		return user, nil
	}

	lock := m.refreshLock(user.ID())
	lock.Lock()
	defer lock.Unlock()

	current, err := m.users.Get(user.ID())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if current.TokenValid(time.Now()) {
		return current, nil
	}

	if current.RefreshToken() == "" {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoRefreshToken, current.SpotifyID())
	}

	grant, err := m.catalog.RefreshToken(ctx, current.RefreshToken())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	current.SetTokens(grant.AccessToken, grant.RefreshToken, time.Now().Add(time.Duration(grant.ExpiresIn)*time.Second))
	if err := m.users.UpdateTokens(current); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	m.logger.Debug("refreshed access token", "user_id", current.ID())

	return current, nil
}
