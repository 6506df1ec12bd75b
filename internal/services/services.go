// package services defines interface Catalog for interacting with HTTP music APIs
package services

import (
	"context"
	"fmt"

	"github.com/mkbell/discme/internal/models"
)

// Catalog defines the interface for a music catalog provider that can
// authenticate users and serve their library, albums, and tracks.
type Catalog interface {
	// AuthorizationURL returns the provider's consent URL for the given
	// anti-forgery state value.
	AuthorizationURL(state string) string

	// ExchangeCode trades an authorization code for a token grant.
	ExchangeCode(ctx context.Context, code string) (*TokenGrant, error)

	// RefreshToken trades a refresh token for a fresh token grant. The
	// provider may omit the refresh token in the response.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenGrant, error)

	// Profile retrieves the profile of the user owning the access token.
	Profile(ctx context.Context, accessToken string) (*Profile, error)

	// SavedAlbums retrieves every album in the user's library, following
	// pagination until the provider reports no further page.
	SavedAlbums(ctx context.Context, accessToken string) ([]models.SavedAlbum, error)

	// AlbumTracks retrieves all tracks of an album.
	AlbumTracks(ctx context.Context, accessToken, albumID string) ([]models.Track, error)

	// Album retrieves a single album's metadata.
	Album(ctx context.Context, accessToken, albumID string) (*models.Album, error)

	// Artist retrieves a single artist.
	Artist(ctx context.Context, accessToken, artistID string) (*models.Artist, error)

	// Search searches the catalog for albums and artists matching the query.
	Search(ctx context.Context, accessToken, query string) (*SearchResults, error)

	// Name returns the name of the provider (e.g., "Spotify")
	Name() string
}

// TokenGrant is a provider token response. ExpiresIn is the token lifetime
// in seconds from the moment the grant was issued.
type TokenGrant struct {
	AccessToken  string `json:"access_token" validate:"required"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in" validate:"gt=0"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// Profile is a provider user profile.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	ProfileURL  string `json:"profile_url"`
	ImageURL    string `json:"image_url"`
}

// SearchResults holds albums and artists matching a search query.
type SearchResults struct {
	Albums  []models.Album  `json:"albums"`
	Artists []models.Artist `json:"artists"`
}

// RemoteError is a non-2xx response from the provider, carrying the status
// code and response body for the caller to relay or log.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote API error: status %d: %s", e.StatusCode, e.Body)
}
