package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mkbell/discme/internal/auth"
	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/ratings"
	"github.com/mkbell/discme/internal/repositories"
	"github.com/mkbell/discme/internal/services"
	"github.com/mkbell/discme/internal/shared"
	mocks "github.com/mkbell/discme/internal/testing"
)

type testServer struct {
	router  *BasicRouter
	manager *auth.Manager
	engine  *ratings.Engine
	db      *sql.DB
}

func setupServer(t *testing.T, catalog services.Catalog) *testServer {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	logger := log.New(io.Discard)
	users := repositories.NewUserRepository(db)
	albums := repositories.NewAlbumRepository(db)
	manager := auth.NewManager(users, catalog, "test-secret", time.Hour, logger)
	engine := ratings.NewEngine(
		repositories.NewRatingRepository(db),
		repositories.NewSessionRepository(db),
		logger,
	)

	router := NewBasicRouter()
	router.Handler(NewAuthHandler(manager, time.Hour, logger))
	router.Handler(Protect(NewAPIHandler(catalog, engine, albums, logger), RequireUser(manager)))

	return &testServer{router: router, manager: manager, engine: engine, db: db}
}

// login completes the OAuth dance directly and returns a session token.
func (ts *testServer) login(t *testing.T) (*models.User, string) {
	t.Helper()

	user, err := ts.manager.CompleteCallback(context.Background(), url.Values{"code": {"auth-code"}})
	if err != nil {
		t.Fatalf("failed to complete callback: %v", err)
	}

	token, err := ts.manager.IssueSessionToken(user)
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}

	return user, token
}

func (ts *testServer) request(t *testing.T, method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestRequireUser(t *testing.T) {
	ts := setupServer(t, &mocks.MockCatalog{})

	t.Run("RejectsAnonymous", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/api/saved-albums", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("RejectsGarbageToken", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/api/saved-albums", "garbage", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("AcceptsSessionToken", func(t *testing.T) {
		_, token := ts.login(t)
		rec := ts.request(t, http.MethodGet, "/api/saved-albums", token, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestLoginRedirect(t *testing.T) {
	ts := setupServer(t, &mocks.MockCatalog{})

	rec := ts.request(t, http.MethodGet, "/login", "", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}

	location := rec.Header().Get("Location")
	if !strings.Contains(location, "state=") {
		t.Errorf("expected state in redirect, got %s", location)
	}

	var hasStateCookie bool
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == stateCookie && cookie.Value != "" {
			hasStateCookie = true
		}
	}
	if !hasStateCookie {
		t.Error("expected state cookie to be set")
	}
}

func TestCallbackStateMismatch(t *testing.T) {
	ts := setupServer(t, &mocks.MockCatalog{})

	req := httptest.NewRequest(http.MethodGet, "/callback?code=auth-code&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "original"})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCallbackIssuesSession(t *testing.T) {
	ts := setupServer(t, &mocks.MockCatalog{})

	req := httptest.NewRequest(http.MethodGet, "/callback?code=auth-code&state=state-1", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "state-1"})

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
	}

	var sessionValue string
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == SessionCookie {
			sessionValue = cookie.Value
		}
	}
	if sessionValue == "" {
		t.Fatal("expected session cookie to be set")
	}

	if _, err := ts.manager.ResolveSession(context.Background(), sessionValue); err != nil {
		t.Errorf("issued session should resolve: %v", err)
	}
}

func TestAlbumTracksEndpoint(t *testing.T) {
	catalog := &mocks.MockCatalog{
		AlbumFunc: func(ctx context.Context, accessToken, albumID string) (*models.Album, error) {
			return &models.Album{ID: albumID, Name: "In Rainbows", ArtistName: "Radiohead", TotalTracks: 2}, nil
		},
		AlbumTracksFunc: func(ctx context.Context, accessToken, albumID string) ([]models.Track, error) {
			return []models.Track{
				{ID: "track_1", AlbumID: albumID, Name: "15 Step", TrackNumber: 1},
				{ID: "track_2", AlbumID: albumID, Name: "Bodysnatchers", TrackNumber: 2},
			}, nil
		},
	}
	ts := setupServer(t, catalog)
	_, token := ts.login(t)

	rec := ts.request(t, http.MethodGet, "/api/album-tracks/album_1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Album   models.Album   `json:"album"`
		Tracks  []models.Track `json:"tracks"`
		Session map[string]any `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if payload.Album.Name != "In Rainbows" {
		t.Errorf("unexpected album: %+v", payload.Album)
	}
	if len(payload.Tracks) != 2 {
		t.Errorf("expected 2 tracks, got %d", len(payload.Tracks))
	}
	if payload.Session["total_tracks"].(float64) != 2 {
		t.Errorf("expected session total 2, got %v", payload.Session["total_tracks"])
	}
}

func TestRateEndpoint(t *testing.T) {
	ts := setupServer(t, &mocks.MockCatalog{})
	user, token := ts.login(t)

	if _, err := ts.engine.GetOrCreateSession(user.ID(), "album_1", 2); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	t.Run("RecordsRating", func(t *testing.T) {
		body := strings.NewReader(`{"track_id":"track_1","album_id":"album_1","rating":8}`)
		rec := ts.request(t, http.MethodPost, "/api/rate", token, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var payload struct {
			Session map[string]any `json:"session"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if payload.Session["rated_tracks"].(float64) != 1 {
			t.Errorf("expected 1 rated track, got %v", payload.Session["rated_tracks"])
		}
		if payload.Session["completion_percentage"].(float64) != 50.0 {
			t.Errorf("expected 50%%, got %v", payload.Session["completion_percentage"])
		}
	})

	t.Run("RejectsOutOfRange", func(t *testing.T) {
		body := strings.NewReader(`{"track_id":"track_1","album_id":"album_1","rating":11}`)
		rec := ts.request(t, http.MethodPost, "/api/rate", token, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("RejectsMissingTrack", func(t *testing.T) {
		body := strings.NewReader(`{"album_id":"album_1","rating":5}`)
		rec := ts.request(t, http.MethodPost, "/api/rate", token, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("RejectsGet", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/api/rate", token, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestSessionsEndpoint(t *testing.T) {
	ts := setupServer(t, &mocks.MockCatalog{})
	user, token := ts.login(t)

	if _, err := ts.engine.GetOrCreateSession(user.ID(), "album_1", 1); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if _, _, err := ts.engine.RecordRating(ratings.RatingInput{
		UserID: user.ID(), TrackID: "track_1", AlbumID: "album_1", Rating: 9,
	}); err != nil {
		t.Fatalf("failed to record rating: %v", err)
	}
	if _, err := ts.engine.GetOrCreateSession(user.ID(), "album_2", 10); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	t.Run("ListsAll", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/api/sessions", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var payload struct {
			Total int `json:"total"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if payload.Total != 2 {
			t.Errorf("expected 2 sessions, got %d", payload.Total)
		}
	})

	t.Run("FiltersCompleted", func(t *testing.T) {
		rec := ts.request(t, http.MethodGet, "/api/sessions?completed=true", token, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var payload struct {
			Total int `json:"total"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if payload.Total != 1 {
			t.Errorf("expected 1 completed session, got %d", payload.Total)
		}
	})
}

func TestRemoteErrorRelay(t *testing.T) {
	catalog := &mocks.MockCatalog{
		SavedAlbumsFunc: func(ctx context.Context, accessToken string) ([]models.SavedAlbum, error) {
			return nil, &services.RemoteError{StatusCode: http.StatusTooManyRequests, Body: "rate limited"}
		},
	}
	ts := setupServer(t, catalog)
	_, token := ts.login(t)

	rec := ts.request(t, http.MethodGet, "/api/saved-albums", token, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected upstream status to be relayed, got %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts := setupServer(t, &mocks.MockCatalog{})
	user, token := ts.login(t)

	if _, _, err := ts.engine.RecordRating(ratings.RatingInput{
		UserID: user.ID(), TrackID: "track_1", AlbumID: "album_1", Rating: 6,
	}); err != nil {
		t.Fatalf("failed to record rating: %v", err)
	}

	rec := ts.request(t, http.MethodGet, "/api/stats", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats repositories.SessionStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.TotalRatings != 1 {
		t.Errorf("expected 1 rating, got %d", stats.TotalRatings)
	}
}
