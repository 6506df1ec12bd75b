// Spotify API implementation of [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jellydator/ttlcache/v3"
	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// market pins track listings so relinking doesn't shuffle IDs between fetches
	spotifyMarket = "US"

	pageLimit     = 50
	trackCacheTTL = 5 * time.Minute
)

type spotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type spotifyFollowers struct {
	Total int `json:"total"`
}

type spotifyExternalURLs struct {
	Spotify string `json:"spotify"`
}

type spotifyUser struct {
	ID           string              `json:"id"`
	DisplayName  string              `json:"display_name"`
	Email        string              `json:"email"`
	ExternalURLs spotifyExternalURLs `json:"external_urls"`
	Images       []spotifyImage      `json:"images"`
}

type spotifyArtist struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Genres    []string         `json:"genres"`
	Images    []spotifyImage   `json:"images"`
	Followers spotifyFollowers `json:"followers"`
}

type spotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []spotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	AlbumType   string          `json:"album_type"`
	Genres      []string        `json:"genres"`
	Images      []spotifyImage  `json:"images"`
}

type spotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []spotifyArtist `json:"artists"`
	TrackNumber int             `json:"track_number"`
	DurationMS  int             `json:"duration_ms"`
	PreviewURL  *string         `json:"preview_url"`
	Explicit    bool            `json:"explicit"`
}

type spotifySavedAlbum struct {
	AddedAt string       `json:"added_at"`
	Album   spotifyAlbum `json:"album"`
}

type spotifyPaginatedSavedAlbums struct {
	Items  []spotifySavedAlbum `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
	Next   *string             `json:"next"`
}

type spotifyPaginatedTracks struct {
	Items  []spotifyTrack `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Next   *string        `json:"next"`
}

type spotifySearchResponse struct {
	Albums struct {
		Items []spotifyAlbum `json:"items"`
	} `json:"albums"`
	Artists struct {
		Items []spotifyArtist `json:"items"`
	} `json:"artists"`
}

// SpotifyService implements the Catalog interface for Spotify API interactions.
// Tokens are supplied per call; one service instance serves every user.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	validate   *validator.Validate
	trackCache *ttlcache.Cache[string, []models.Track]

	authURL  string
	tokenURL string
	baseURL  string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"user-library-read",
			"streaming",
			"user-read-playback-state",
			"user-modify-playback-state",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, []models.Track](trackCacheTTL),
	)
	go cache.Start()

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		validate:   validator.New(),
		trackCache: cache,
		authURL:    spotifyAuthURL,
		tokenURL:   spotifyTokenURL,
		baseURL:    spotifyBaseURL,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthorizationURL returns the OAuth2 consent URL. show_dialog forces the
// consent screen so switching Spotify accounts works.
func (s *SpotifyService) AuthorizationURL(state string) string {
	s.config.Endpoint.AuthURL = s.authURL
	return s.config.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// postTokenForm submits a form to the token endpoint and decodes the grant.
func (s *SpotifyService) postTokenForm(ctx context.Context, form url.Values) (*TokenGrant, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var grant TokenGrant
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	if err := s.validate.Struct(&grant); err != nil {
		return nil, fmt.Errorf("invalid token response: %w", err)
	}

	return &grant, nil
}

// ExchangeCode trades an authorization code for a token grant.
func (s *SpotifyService) ExchangeCode(ctx context.Context, code string) (*TokenGrant, error) {
	form := url.Values{
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {s.config.RedirectURL},
		"client_id":     {s.config.ClientID},
		"client_secret": {s.config.ClientSecret},
	}

	return s.postTokenForm(ctx, form)
}

// RefreshToken trades a refresh token for a fresh grant. Spotify usually
// omits the refresh token in the response; callers keep the old one then.
func (s *SpotifyService) RefreshToken(ctx context.Context, refreshToken string) (*TokenGrant, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {s.config.ClientID},
		"client_secret": {s.config.ClientSecret},
	}

	return s.postTokenForm(ctx, form)
}

// doGet performs an authenticated GET against the Spotify API.
func (s *SpotifyService) doGet(ctx context.Context, accessToken, endpoint string, result any) error {
	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		apiURL = s.baseURL + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &RemoteError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Profile retrieves the profile of the user owning the access token.
func (s *SpotifyService) Profile(ctx context.Context, accessToken string) (*Profile, error) {
	var user spotifyUser
	if err := s.doGet(ctx, accessToken, "/me", &user); err != nil {
		return nil, err
	}

	profile := &Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		ProfileURL:  user.ExternalURLs.Spotify,
	}
	if len(user.Images) > 0 {
		profile.ImageURL = user.Images[0].URL
	}

	return profile, nil
}

func toAlbum(sa spotifyAlbum) models.Album {
	album := models.Album{
		ID:          sa.ID,
		Name:        sa.Name,
		ReleaseDate: sa.ReleaseDate,
		TotalTracks: sa.TotalTracks,
		AlbumType:   sa.AlbumType,
		Genres:      sa.Genres,
	}
	if len(sa.Artists) > 0 {
		album.ArtistName = sa.Artists[0].Name
		album.ArtistID = sa.Artists[0].ID
	}
	if len(sa.Images) > 0 {
		album.ImageURL = sa.Images[0].URL
	}
	return album
}

func toArtist(sa spotifyArtist) models.Artist {
	artist := models.Artist{
		ID:        sa.ID,
		Name:      sa.Name,
		Genres:    sa.Genres,
		Followers: sa.Followers.Total,
	}
	if len(sa.Images) > 0 {
		artist.ImageURL = sa.Images[0].URL
	}
	return artist
}

// SavedAlbums retrieves the user's entire album library, following pagination
// until Spotify reports no next page.
func (s *SpotifyService) SavedAlbums(ctx context.Context, accessToken string) ([]models.SavedAlbum, error) {
	var albums []models.SavedAlbum
	offset := 0

	for {
		endpoint := fmt.Sprintf("/me/albums?limit=%d&offset=%d", pageLimit, offset)

		var page spotifyPaginatedSavedAlbums
		if err := s.doGet(ctx, accessToken, endpoint, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			albums = append(albums, models.SavedAlbum{
				AddedAt: item.AddedAt,
				Album:   toAlbum(item.Album),
			})
		}

		if page.Next == nil {
			break
		}
		offset += pageLimit
	}

	return albums, nil
}

// AlbumTracks retrieves all tracks of an album, following pagination. Results
// are cached briefly since track listings rarely change mid-session.
func (s *SpotifyService) AlbumTracks(ctx context.Context, accessToken, albumID string) ([]models.Track, error) {
	if item := s.trackCache.Get(albumID); item != nil {
		return item.Value(), nil
	}

	var tracks []models.Track
	offset := 0

	for {
		endpoint := fmt.Sprintf("/albums/%s/tracks?market=%s&limit=%d&offset=%d",
			albumID, spotifyMarket, pageLimit, offset)

		var page spotifyPaginatedTracks
		if err := s.doGet(ctx, accessToken, endpoint, &page); err != nil {
			return nil, err
		}

		for _, st := range page.Items {
			track := models.Track{
				ID:          st.ID,
				AlbumID:     albumID,
				Name:        st.Name,
				TrackNumber: st.TrackNumber,
				DurationMS:  st.DurationMS,
				Explicit:    st.Explicit,
			}
			if len(st.Artists) > 0 {
				track.ArtistName = st.Artists[0].Name
			}
			if st.PreviewURL != nil {
				track.PreviewURL = *st.PreviewURL
			}
			tracks = append(tracks, track)
		}

		if page.Next == nil {
			break
		}
		offset += pageLimit
	}

	s.trackCache.Set(albumID, tracks, ttlcache.DefaultTTL)

	return tracks, nil
}

// Album retrieves a single album's metadata.
func (s *SpotifyService) Album(ctx context.Context, accessToken, albumID string) (*models.Album, error) {
	var sa spotifyAlbum
	endpoint := fmt.Sprintf("/albums/%s?market=%s", albumID, spotifyMarket)
	if err := s.doGet(ctx, accessToken, endpoint, &sa); err != nil {
		return nil, err
	}

	album := toAlbum(sa)
	return &album, nil
}

// Artist retrieves a single artist.
func (s *SpotifyService) Artist(ctx context.Context, accessToken, artistID string) (*models.Artist, error) {
	var sa spotifyArtist
	endpoint := fmt.Sprintf("/artists/%s", artistID)
	if err := s.doGet(ctx, accessToken, endpoint, &sa); err != nil {
		return nil, err
	}

	artist := toArtist(sa)
	return &artist, nil
}

// Search searches Spotify for albums and artists matching the query.
func (s *SpotifyService) Search(ctx context.Context, accessToken, query string) (*SearchResults, error) {
	endpoint := fmt.Sprintf("/search?q=%s&type=album,artist&limit=10", url.QueryEscape(query))

	var response spotifySearchResponse
	if err := s.doGet(ctx, accessToken, endpoint, &response); err != nil {
		return nil, err
	}

	results := &SearchResults{}
	for _, sa := range response.Albums.Items {
		results.Albums = append(results.Albums, toAlbum(sa))
	}
	for _, sa := range response.Artists.Items {
		results.Artists = append(results.Artists, toArtist(sa))
	}

	return results, nil
}
