package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func newTestService(t *testing.T) *SpotifyService {
	t.Helper()

	svc, err := NewSpotifyService(map[string]string{
		"client_id":     "test-client",
		"client_secret": "test-secret",
		"redirect_uri":  "http://localhost:3000/callback",
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	return svc
}

func TestAuthorizationURL(t *testing.T) {
	svc := newTestService(t)

	authURL := svc.AuthorizationURL("state-123")

	for _, want := range []string{
		"client_id=test-client",
		"state=state-123",
		"show_dialog=true",
		"response_type=code",
		"user-library-read",
	} {
		if !strings.Contains(authURL, want) {
			t.Errorf("auth URL missing %q: %s", want, authURL)
		}
	}
}

func TestExchangeCode(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Fatalf("failed to parse form: %v", err)
			}
			if r.PostForm.Get("grant_type") != "authorization_code" {
				t.Errorf("expected authorization_code grant, got %s", r.PostForm.Get("grant_type"))
			}
			if r.PostForm.Get("code") != "auth-code" {
				t.Errorf("expected auth-code, got %s", r.PostForm.Get("code"))
			}
			if r.PostForm.Get("client_id") != "test-client" {
				t.Errorf("expected client_id, got %s", r.PostForm.Get("client_id"))
			}
			if r.PostForm.Get("redirect_uri") == "" {
				t.Error("expected redirect_uri in form")
			}

			json.NewEncoder(w).Encode(TokenGrant{
				AccessToken:  "access-token",
				TokenType:    "Bearer",
				ExpiresIn:    3600,
				RefreshToken: "refresh-token",
			})
		}))
		defer server.Close()

		svc := newTestService(t)
		svc.tokenURL = server.URL

		grant, err := svc.ExchangeCode(context.Background(), "auth-code")
		if err != nil {
			t.Fatalf("failed to exchange code: %v", err)
		}

		if grant.AccessToken != "access-token" {
			t.Errorf("expected access token, got %s", grant.AccessToken)
		}
		if grant.ExpiresIn != 3600 {
			t.Errorf("expected 3600s lifetime, got %d", grant.ExpiresIn)
		}
	})

	t.Run("RemoteErrorOnBadStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer server.Close()

		svc := newTestService(t)
		svc.tokenURL = server.URL

		_, err := svc.ExchangeCode(context.Background(), "bad-code")
		if err == nil {
			t.Fatal("expected error for bad status")
		}

		remoteErr, ok := err.(*RemoteError)
		if !ok {
			t.Fatalf("expected RemoteError, got %T", err)
		}
		if remoteErr.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", remoteErr.StatusCode)
		}
		if !strings.Contains(remoteErr.Body, "invalid_grant") {
			t.Errorf("expected body in error, got %s", remoteErr.Body)
		}
	})

	t.Run("RejectsGrantWithoutAccessToken", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"expires_in": 3600})
		}))
		defer server.Close()

		svc := newTestService(t)
		svc.tokenURL = server.URL

		if _, err := svc.ExchangeCode(context.Background(), "auth-code"); err == nil {
			t.Error("expected validation error for missing access_token")
		}
	})
}

func TestRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("expected refresh_token grant, got %s", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			t.Errorf("expected refresh token, got %s", r.PostForm.Get("refresh_token"))
		}

		// Spotify omits refresh_token on refresh
		json.NewEncoder(w).Encode(TokenGrant{
			AccessToken: "access-2",
			TokenType:   "Bearer",
			ExpiresIn:   3600,
		})
	}))
	defer server.Close()

	svc := newTestService(t)
	svc.tokenURL = server.URL

	grant, err := svc.RefreshToken(context.Background(), "refresh-1")
	if err != nil {
		t.Fatalf("failed to refresh token: %v", err)
	}

	if grant.AccessToken != "access-2" {
		t.Errorf("expected new access token, got %s", grant.AccessToken)
	}
	if grant.RefreshToken != "" {
		t.Errorf("expected empty refresh token, got %s", grant.RefreshToken)
	}
}

func TestSavedAlbums(t *testing.T) {
	pageSizes := []int{50, 50, 20}

	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			t.Errorf("expected bearer token, got %s", r.Header.Get("Authorization"))
		}

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		page := offset / pageLimit
		requests++

		items := make([]spotifySavedAlbum, pageSizes[page])
		for i := range items {
			items[i] = spotifySavedAlbum{
				AddedAt: "2024-01-01T00:00:00Z",
				Album: spotifyAlbum{
					ID:      fmt.Sprintf("album_%d", offset+i),
					Name:    fmt.Sprintf("Album %d", offset+i),
					Artists: []spotifyArtist{{ID: "artist_1", Name: "Artist"}},
				},
			}
		}

		response := spotifyPaginatedSavedAlbums{
			Items:  items,
			Total:  120,
			Limit:  pageLimit,
			Offset: offset,
		}
		if page < len(pageSizes)-1 {
			next := "next-page"
			response.Next = &next
		}

		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	svc := newTestService(t)
	svc.baseURL = server.URL

	albums, err := svc.SavedAlbums(context.Background(), "user-token")
	if err != nil {
		t.Fatalf("failed to fetch saved albums: %v", err)
	}

	if len(albums) != 120 {
		t.Errorf("expected 120 albums, got %d", len(albums))
	}
	if requests != 3 {
		t.Errorf("expected 3 page requests, got %d", requests)
	}
	if albums[0].Album.ArtistName != "Artist" {
		t.Errorf("expected mapped artist name, got %s", albums[0].Album.ArtistName)
	}
}

func TestAlbumTracks(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		if r.URL.Query().Get("market") != "US" {
			t.Errorf("expected market=US, got %s", r.URL.Query().Get("market"))
		}

		json.NewEncoder(w).Encode(spotifyPaginatedTracks{
			Items: []spotifyTrack{
				{ID: "track_1", Name: "Opener", TrackNumber: 1, DurationMS: 215000},
				{ID: "track_2", Name: "Closer", TrackNumber: 2, DurationMS: 180000},
			},
			Total: 2,
		})
	}))
	defer server.Close()

	svc := newTestService(t)
	svc.baseURL = server.URL

	tracks, err := svc.AlbumTracks(context.Background(), "user-token", "album_1")
	if err != nil {
		t.Fatalf("failed to fetch album tracks: %v", err)
	}

	if len(tracks) != 2 {
		t.Errorf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].AlbumID != "album_1" {
		t.Errorf("expected album ID on track, got %s", tracks[0].AlbumID)
	}

	// second fetch is served from the cache
	if _, err := svc.AlbumTracks(context.Background(), "user-token", "album_1"); err != nil {
		t.Fatalf("failed to fetch cached tracks: %v", err)
	}
	if requests != 1 {
		t.Errorf("expected 1 upstream request, got %d", requests)
	}
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "radiohead" {
			t.Errorf("expected query, got %s", r.URL.Query().Get("q"))
		}

		var response spotifySearchResponse
		response.Albums.Items = []spotifyAlbum{{ID: "album_1", Name: "OK Computer"}}
		response.Artists.Items = []spotifyArtist{{ID: "artist_1", Name: "Radiohead"}}
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	svc := newTestService(t)
	svc.baseURL = server.URL

	results, err := svc.Search(context.Background(), "user-token", "radiohead")
	if err != nil {
		t.Fatalf("failed to search: %v", err)
	}

	if len(results.Albums) != 1 || results.Albums[0].Name != "OK Computer" {
		t.Errorf("unexpected albums: %+v", results.Albums)
	}
	if len(results.Artists) != 1 || results.Artists[0].Name != "Radiohead" {
		t.Errorf("unexpected artists: %+v", results.Artists)
	}
}

func TestNewSpotifyService(t *testing.T) {
	t.Run("MissingClientID", func(t *testing.T) {
		_, err := NewSpotifyService(map[string]string{"client_secret": "secret"})
		if err == nil {
			t.Error("expected error for missing client_id")
		}
	})

	t.Run("MissingClientSecret", func(t *testing.T) {
		_, err := NewSpotifyService(map[string]string{"client_id": "client"})
		if err == nil {
			t.Error("expected error for missing client_secret")
		}
	})
}
