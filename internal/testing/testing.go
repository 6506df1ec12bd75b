// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"net/http"

	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/services"
)

// MockCatalog is a test double for [services.Catalog]. Each method delegates
// to the corresponding function field when set and returns a zero value
// otherwise, so tests only stub what they exercise.
type MockCatalog struct {
	AuthorizationURLFunc func(state string) string
	ExchangeCodeFunc     func(ctx context.Context, code string) (*services.TokenGrant, error)
	RefreshTokenFunc     func(ctx context.Context, refreshToken string) (*services.TokenGrant, error)
	ProfileFunc          func(ctx context.Context, accessToken string) (*services.Profile, error)
	SavedAlbumsFunc      func(ctx context.Context, accessToken string) ([]models.SavedAlbum, error)
	AlbumTracksFunc      func(ctx context.Context, accessToken, albumID string) ([]models.Track, error)
	AlbumFunc            func(ctx context.Context, accessToken, albumID string) (*models.Album, error)
	ArtistFunc           func(ctx context.Context, accessToken, artistID string) (*models.Artist, error)
	SearchFunc           func(ctx context.Context, accessToken, query string) (*services.SearchResults, error)
}

func (m *MockCatalog) AuthorizationURL(state string) string {
	if m.AuthorizationURLFunc != nil {
		return m.AuthorizationURLFunc(state)
	}
	return "https://accounts.example.com/authorize?state=" + state
}

func (m *MockCatalog) ExchangeCode(ctx context.Context, code string) (*services.TokenGrant, error) {
	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, code)
	}
	return &services.TokenGrant{AccessToken: "mock-access", RefreshToken: "mock-refresh", ExpiresIn: 3600}, nil
}

func (m *MockCatalog) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenGrant, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return &services.TokenGrant{AccessToken: "mock-access-2", ExpiresIn: 3600}, nil
}

func (m *MockCatalog) Profile(ctx context.Context, accessToken string) (*services.Profile, error) {
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, accessToken)
	}
	return &services.Profile{ID: "mock-user", DisplayName: "Mock User"}, nil
}

func (m *MockCatalog) SavedAlbums(ctx context.Context, accessToken string) ([]models.SavedAlbum, error) {
	if m.SavedAlbumsFunc != nil {
		return m.SavedAlbumsFunc(ctx, accessToken)
	}
	return []models.SavedAlbum{}, nil
}

func (m *MockCatalog) AlbumTracks(ctx context.Context, accessToken, albumID string) ([]models.Track, error) {
	if m.AlbumTracksFunc != nil {
		return m.AlbumTracksFunc(ctx, accessToken, albumID)
	}
	return []models.Track{}, nil
}

func (m *MockCatalog) Album(ctx context.Context, accessToken, albumID string) (*models.Album, error) {
	if m.AlbumFunc != nil {
		return m.AlbumFunc(ctx, accessToken, albumID)
	}
	return &models.Album{ID: albumID, Name: "Mock Album", ArtistName: "Mock Artist"}, nil
}

func (m *MockCatalog) Artist(ctx context.Context, accessToken, artistID string) (*models.Artist, error) {
	if m.ArtistFunc != nil {
		return m.ArtistFunc(ctx, accessToken, artistID)
	}
	return &models.Artist{ID: artistID, Name: "Mock Artist"}, nil
}

func (m *MockCatalog) Search(ctx context.Context, accessToken, query string) (*services.SearchResults, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, accessToken, query)
	}
	return &services.SearchResults{}, nil
}

func (m *MockCatalog) Name() string { return "mock" }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (int, error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows stubbing HTTP responses in tests
type MockRoundTripper struct {
	RoundTripFunc func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.RoundTripFunc(req)
}
