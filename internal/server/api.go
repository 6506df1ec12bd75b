package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/ratings"
	"github.com/mkbell/discme/internal/repositories"
	"github.com/mkbell/discme/internal/services"
	"github.com/mkbell/discme/internal/shared"
)

// APIHandler serves the JSON API. Every route expects an authenticated user
// in the request context, attached by [RequireUser].
type APIHandler struct {
	catalog services.Catalog
	engine  *ratings.Engine
	albums  *repositories.AlbumRepository
	logger  *log.Logger
}

// NewAPIHandler creates an APIHandler over the catalog and rating engine.
func NewAPIHandler(catalog services.Catalog, engine *ratings.Engine, albums *repositories.AlbumRepository, logger *log.Logger) *APIHandler {
	return &APIHandler{catalog: catalog, engine: engine, albums: albums, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *APIHandler) Routes() []string {
	return []string{
		"/api/saved-albums",
		"/api/album-tracks/",
		"/api/rate",
		"/api/sessions",
		"/api/stats",
		"/api/artist/",
		"/api/search",
	}
}

func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	switch {
	case r.URL.Path == "/api/saved-albums":
		h.handleSavedAlbums(w, r, user)
	case strings.HasPrefix(r.URL.Path, "/api/album-tracks/"):
		h.handleAlbumTracks(w, r, user)
	case r.URL.Path == "/api/rate":
		h.handleRate(w, r, user)
	case r.URL.Path == "/api/sessions":
		h.handleSessions(w, r, user)
	case r.URL.Path == "/api/stats":
		h.handleStats(w, r, user)
	case strings.HasPrefix(r.URL.Path, "/api/artist/"):
		h.handleArtist(w, r, user)
	case r.URL.Path == "/api/search":
		h.handleSearch(w, r, user)
	default:
		http.NotFound(w, r)
	}
}

// relayRemoteError maps provider failures onto our responses: upstream HTTP
// errors keep their status, everything else is a bad gateway.
func (h *APIHandler) relayRemoteError(w http.ResponseWriter, err error) {
	var remoteErr *services.RemoteError
	if errors.As(err, &remoteErr) {
		h.logger.Warn("upstream error", "status", remoteErr.StatusCode, "body", remoteErr.Body)
		writeError(w, remoteErr.StatusCode, "upstream request failed")
		return
	}

	h.logger.Error("request failed", "error", err)
	writeError(w, http.StatusBadGateway, "upstream request failed")
}

func (h *APIHandler) handleSavedAlbums(w http.ResponseWriter, r *http.Request, user *models.User) {
	albums, err := h.catalog.SavedAlbums(r.Context(), user.AccessToken())
	if err != nil {
		h.relayRemoteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": albums,
		"total": len(albums),
	})
}

func (h *APIHandler) handleAlbumTracks(w http.ResponseWriter, r *http.Request, user *models.User) {
	albumID := strings.TrimPrefix(r.URL.Path, "/api/album-tracks/")
	if albumID == "" {
		writeError(w, http.StatusBadRequest, "missing album id")
		return
	}

	album, err := h.catalog.Album(r.Context(), user.AccessToken(), albumID)
	if err != nil {
		h.relayRemoteError(w, err)
		return
	}

	tracks, err := h.catalog.AlbumTracks(r.Context(), user.AccessToken(), albumID)
	if err != nil {
		h.relayRemoteError(w, err)
		return
	}

	session, err := h.engine.GetOrCreateSession(user.ID(), albumID, album.TotalTracks)
	if err != nil {
		h.logger.Error("failed to open session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to open rating session")
		return
	}

	// cache metadata so exports and listings don't need the catalog again
	if cached, err := h.albums.CacheFromCatalog(*album); err != nil {
		h.logger.Warn("failed to cache album", "album_id", albumID, "error", err)
	} else if err := h.engine.AttachAlbum(session, cached.ID()); err != nil {
		h.logger.Warn("failed to link album", "album_id", albumID, "error", err)
	}

	byTrack, err := h.engine.AlbumRatings(user.ID(), albumID)
	if err != nil {
		h.logger.Error("failed to load ratings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load ratings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"album":   album,
		"tracks":  tracks,
		"ratings": byTrack,
		"session": session.Map(),
	})
}

type rateRequest struct {
	TrackID string `json:"track_id"`
	AlbumID string `json:"album_id"`
	Rating  int    `json:"rating"`
}

func (h *APIHandler) handleRate(w http.ResponseWriter, r *http.Request, user *models.User) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}

	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rating, session, err := h.engine.RecordRating(ratings.RatingInput{
		UserID:  user.ID(),
		TrackID: req.TrackID,
		AlbumID: req.AlbumID,
		Rating:  req.Rating,
	})
	if err != nil {
		if errors.Is(err, shared.ErrOutOfRange) || errors.Is(err, shared.ErrMissingField) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("failed to record rating", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record rating")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rating":  rating.Map(),
		"session": session.Map(),
	})
}

func (h *APIHandler) handleSessions(w http.ResponseWriter, r *http.Request, user *models.User) {
	completedOnly := r.URL.Query().Get("completed") == "true"

	sessions, err := h.engine.Sessions(user.ID(), completedOnly)
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	items := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, session.Map())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

func (h *APIHandler) handleStats(w http.ResponseWriter, r *http.Request, user *models.User) {
	stats, err := h.engine.UserStats(user.ID())
	if err != nil {
		h.logger.Error("failed to compute stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) handleArtist(w http.ResponseWriter, r *http.Request, user *models.User) {
	artistID := strings.TrimPrefix(r.URL.Path, "/api/artist/")
	if artistID == "" {
		writeError(w, http.StatusBadRequest, "missing artist id")
		return
	}

	artist, err := h.catalog.Artist(r.Context(), user.AccessToken(), artistID)
	if err != nil {
		h.relayRemoteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, artist)
}

func (h *APIHandler) handleSearch(w http.ResponseWriter, r *http.Request, user *models.User) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}

	results, err := h.catalog.Search(r.Context(), user.AccessToken(), query)
	if err != nil {
		h.relayRemoteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, results)
}
