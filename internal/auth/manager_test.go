package auth

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/repositories"
	"github.com/mkbell/discme/internal/services"
	"github.com/mkbell/discme/internal/shared"
	mocks "github.com/mkbell/discme/internal/testing"
)

func setupManager(t *testing.T, catalog services.Catalog) (*Manager, *repositories.UserRepository, *sql.DB) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	users := repositories.NewUserRepository(db)
	logger := log.New(io.Discard)
	manager := NewManager(users, catalog, "test-secret", time.Hour, logger)

	return manager, users, db
}

func TestCompleteCallback(t *testing.T) {
	t.Run("ProviderDenied", func(t *testing.T) {
		manager, _, db := setupManager(t, &mocks.MockCatalog{})
		defer db.Close()

		params := url.Values{"error": {"access_denied"}}
		_, err := manager.CompleteCallback(context.Background(), params)
		if !errors.Is(err, ErrProviderDenied) {
			t.Errorf("expected ErrProviderDenied, got %v", err)
		}
	})

	t.Run("MissingCode", func(t *testing.T) {
		manager, _, db := setupManager(t, &mocks.MockCatalog{})
		defer db.Close()

		_, err := manager.CompleteCallback(context.Background(), url.Values{})
		if !errors.Is(err, ErrMissingCode) {
			t.Errorf("expected ErrMissingCode, got %v", err)
		}
	})

	t.Run("ExchangeFailure", func(t *testing.T) {
		catalog := &mocks.MockCatalog{
			ExchangeCodeFunc: func(ctx context.Context, code string) (*services.TokenGrant, error) {
				return nil, &services.RemoteError{StatusCode: 400, Body: "invalid_grant"}
			},
		}
		manager, _, db := setupManager(t, catalog)
		defer db.Close()

		params := url.Values{"code": {"bad-code"}}
		_, err := manager.CompleteCallback(context.Background(), params)
		if !errors.Is(err, ErrTokenExchangeFailed) {
			t.Errorf("expected ErrTokenExchangeFailed, got %v", err)
		}
	})

	t.Run("ProfileFailure", func(t *testing.T) {
		catalog := &mocks.MockCatalog{
			ProfileFunc: func(ctx context.Context, accessToken string) (*services.Profile, error) {
				return nil, &services.RemoteError{StatusCode: 500, Body: "upstream down"}
			},
		}
		manager, _, db := setupManager(t, catalog)
		defer db.Close()

		params := url.Values{"code": {"auth-code"}}
		_, err := manager.CompleteCallback(context.Background(), params)
		if !errors.Is(err, ErrProfileFetchFailed) {
			t.Errorf("expected ErrProfileFetchFailed, got %v", err)
		}
	})

	t.Run("PersistsUser", func(t *testing.T) {
		manager, users, db := setupManager(t, &mocks.MockCatalog{})
		defer db.Close()

		params := url.Values{"code": {"auth-code"}}
		user, err := manager.CompleteCallback(context.Background(), params)
		if err != nil {
			t.Fatalf("failed to complete callback: %v", err)
		}

		if user.SpotifyID() != "mock-user" {
			t.Errorf("expected mock-user identity, got %s", user.SpotifyID())
		}
		if !user.TokenValid(time.Now()) {
			t.Error("expected fresh token to be valid")
		}

		stored, err := users.GetBySpotifyID("mock-user")
		if err != nil {
			t.Fatalf("failed to load persisted user: %v", err)
		}
		if stored.AccessToken() != "mock-access" {
			t.Errorf("expected persisted access token, got %s", stored.AccessToken())
		}
	})

	t.Run("RepeatedCallbackReusesUser", func(t *testing.T) {
		manager, users, db := setupManager(t, &mocks.MockCatalog{})
		defer db.Close()

		params := url.Values{"code": {"auth-code"}}
		first, err := manager.CompleteCallback(context.Background(), params)
		if err != nil {
			t.Fatalf("failed to complete callback: %v", err)
		}

		second, err := manager.CompleteCallback(context.Background(), params)
		if err != nil {
			t.Fatalf("failed to repeat callback: %v", err)
		}

		if second.ID() != first.ID() {
			t.Errorf("expected same user row, got %s and %s", first.ID(), second.ID())
		}

		all, err := users.List(map[string]any{})
		if err != nil {
			t.Fatalf("failed to list users: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("expected 1 user row, got %d", len(all))
		}
	})
}

func TestSessionTokens(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		manager, _, db := setupManager(t, &mocks.MockCatalog{})
		defer db.Close()

		user, err := manager.CompleteCallback(context.Background(), url.Values{"code": {"auth-code"}})
		if err != nil {
			t.Fatalf("failed to complete callback: %v", err)
		}

		token, err := manager.IssueSessionToken(user)
		if err != nil {
			t.Fatalf("failed to issue session token: %v", err)
		}

		resolved, err := manager.ResolveSession(context.Background(), token)
		if err != nil {
			t.Fatalf("failed to resolve session: %v", err)
		}
		if resolved.ID() != user.ID() {
			t.Errorf("expected user %s, got %s", user.ID(), resolved.ID())
		}
	})

	t.Run("EmptyTokenUnauthenticated", func(t *testing.T) {
		manager, _, db := setupManager(t, &mocks.MockCatalog{})
		defer db.Close()

		_, err := manager.ResolveSession(context.Background(), "")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("GarbageTokenUnauthenticated", func(t *testing.T) {
		manager, _, db := setupManager(t, &mocks.MockCatalog{})
		defer db.Close()

		_, err := manager.ResolveSession(context.Background(), "not-a-token")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("ExpiredAccessTokenRejected", func(t *testing.T) {
		catalog := &mocks.MockCatalog{
			ExchangeCodeFunc: func(ctx context.Context, code string) (*services.TokenGrant, error) {
				// grant that expires immediately
				return &services.TokenGrant{AccessToken: "stale", RefreshToken: "refresh", ExpiresIn: 1}, nil
			},
		}
		manager, users, db := setupManager(t, catalog)
		defer db.Close()

		user, err := manager.CompleteCallback(context.Background(), url.Values{"code": {"auth-code"}})
		if err != nil {
			t.Fatalf("failed to complete callback: %v", err)
		}

		// push the expiry into the past
		user.SetTokens("stale", "refresh", time.Now().Add(-time.Minute))
		if err := users.UpdateTokens(user); err != nil {
			t.Fatalf("failed to expire token: %v", err)
		}

		token, err := manager.IssueSessionToken(user)
		if err != nil {
			t.Fatalf("failed to issue session token: %v", err)
		}

		if _, err := manager.ResolveSession(context.Background(), token); !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}

		// the refresh path still resolves the user
		if _, err := manager.SessionUser(context.Background(), token); err != nil {
			t.Errorf("expected SessionUser to succeed, got %v", err)
		}
	})
}

func TestTokenValidBoundary(t *testing.T) {
	now := time.Now()
	user := models.NewUser(0, "spotify_user_1", "Test User")

	user.SetTokens("access", "refresh", now)
	if user.TokenValid(now) {
		t.Error("token expiring exactly now should be invalid")
	}

	user.SetTokens("access", "refresh", now.Add(time.Second))
	if !user.TokenValid(now) {
		t.Error("token expiring in the future should be valid")
	}

	user.SetTokens("access", "refresh", now.Add(-time.Second))
	if user.TokenValid(now) {
		t.Error("token expired in the past should be invalid")
	}
}

func TestRefreshIfNeeded(t *testing.T) {
	expiredCallback := func(manager *Manager, users *repositories.UserRepository, t *testing.T) *models.User {
		t.Helper()

		user, err := manager.CompleteCallback(context.Background(), url.Values{"code": {"auth-code"}})
		if err != nil {
			t.Fatalf("failed to complete callback: %v", err)
		}

		user.SetTokens(user.AccessToken(), user.RefreshToken(), time.Now().Add(-time.Minute))
		if err := users.UpdateTokens(user); err != nil {
			t.Fatalf("failed to expire token: %v", err)
		}

		return user
	}

	t.Run("NoOpWhenValid", func(t *testing.T) {
		catalog := &mocks.MockCatalog{
			RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*services.TokenGrant, error) {
				t.Error("refresh should not be called for a valid token")
				return nil, errors.New("unexpected")
			},
		}
		manager, _, db := setupManager(t, catalog)
		defer db.Close()

		user, err := manager.CompleteCallback(context.Background(), url.Values{"code": {"auth-code"}})
		if err != nil {
			t.Fatalf("failed to complete callback: %v", err)
		}

		same, err := manager.RefreshIfNeeded(context.Background(), user)
		if err != nil {
			t.Fatalf("failed refresh check: %v", err)
		}
		if same.AccessToken() != user.AccessToken() {
			t.Error("expected token to be untouched")
		}
	})

	t.Run("RefreshesExpiredToken", func(t *testing.T) {
		var calls int
		catalog := &mocks.MockCatalog{
			RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*services.TokenGrant, error) {
				calls++
				if refreshToken != "mock-refresh" {
					t.Errorf("expected stored refresh token, got %s", refreshToken)
				}
				return &services.TokenGrant{AccessToken: "fresh-access", ExpiresIn: 3600}, nil
			},
		}
		manager, users, db := setupManager(t, catalog)
		defer db.Close()

		user := expiredCallback(manager, users, t)

		refreshed, err := manager.RefreshIfNeeded(context.Background(), user)
		if err != nil {
			t.Fatalf("failed to refresh: %v", err)
		}

		if refreshed.AccessToken() != "fresh-access" {
			t.Errorf("expected fresh access token, got %s", refreshed.AccessToken())
		}
		if refreshed.RefreshToken() != "mock-refresh" {
			t.Errorf("expected preserved refresh token, got %s", refreshed.RefreshToken())
		}
		if !refreshed.TokenValid(time.Now()) {
			t.Error("expected refreshed token to be valid")
		}
		if calls != 1 {
			t.Errorf("expected 1 refresh call, got %d", calls)
		}

		stored, err := users.Get(user.ID())
		if err != nil {
			t.Fatalf("failed to load user: %v", err)
		}
		if stored.AccessToken() != "fresh-access" {
			t.Errorf("expected persisted fresh token, got %s", stored.AccessToken())
		}
	})

	t.Run("FailsWithoutRefreshToken", func(t *testing.T) {
		catalog := &mocks.MockCatalog{
			ExchangeCodeFunc: func(ctx context.Context, code string) (*services.TokenGrant, error) {
				return &services.TokenGrant{AccessToken: "access", ExpiresIn: 3600}, nil
			},
		}
		manager, users, db := setupManager(t, catalog)
		defer db.Close()

		user := expiredCallback(manager, users, t)

		if _, err := manager.RefreshIfNeeded(context.Background(), user); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("WrapsProviderFailure", func(t *testing.T) {
		catalog := &mocks.MockCatalog{
			RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*services.TokenGrant, error) {
				return nil, &services.RemoteError{StatusCode: 400, Body: "invalid refresh"}
			},
		}
		manager, users, db := setupManager(t, catalog)
		defer db.Close()

		user := expiredCallback(manager, users, t)

		if _, err := manager.RefreshIfNeeded(context.Background(), user); !errors.Is(err, ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
	})
}
