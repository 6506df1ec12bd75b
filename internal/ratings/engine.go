// package ratings implements the per-album rating progress engine: recording
// track ratings and keeping each album session's aggregate in step with the
// persisted rating rows.
package ratings

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/repositories"
	"github.com/mkbell/discme/internal/shared"
)

// Engine records ratings and recomputes album session aggregates.
//
// Aggregates are always recomputed from the persisted rating rows, never
// incremented, so re-rating a track or replaying a write converges on the
// same state.
type Engine struct {
	ratings  *repositories.RatingRepository
	sessions *repositories.SessionRepository
	validate *validator.Validate
	logger   *log.Logger
}

// NewEngine creates an Engine over the given repositories.
func NewEngine(ratings *repositories.RatingRepository, sessions *repositories.SessionRepository, logger *log.Logger) *Engine {
	return &Engine{
		ratings:  ratings,
		sessions: sessions,
		validate: validator.New(),
		logger:   logger,
	}
}

// SetLogger replaces the engine's logger, used by the TUI to redirect logs to a file.
func (e *Engine) SetLogger(logger *log.Logger) {
	e.logger = logger
}

// RatingInput is a rating submission before persistence.
type RatingInput struct {
	UserID  string `json:"user_id" validate:"required"`
	TrackID string `json:"track_id" validate:"required"`
	AlbumID string `json:"album_id" validate:"required"`
	Rating  int    `json:"rating" validate:"min=1,max=10"`
}

// GetOrCreateSession returns the session for a (user, album) pair, creating
// it with the given track total when none exists. An existing session keeps
// the total it was created with.
func (e *Engine) GetOrCreateSession(userID, albumSpotifyID string, totalTracks int) (*models.RatingSession, error) {
	return e.sessions.GetOrCreate(userID, albumSpotifyID, totalTracks)
}

// RecordRating validates and persists a rating, then recomputes the album
// session's aggregate. The returned session reflects the new rating.
func (e *Engine) RecordRating(input RatingInput) (*models.Rating, *models.RatingSession, error) {
	if err := e.validate.Struct(&input); err != nil {
		return nil, nil, e.mapValidationError(input, err)
	}

	rating, err := e.ratings.Upsert(models.NewRating(0, input.UserID, input.TrackID, input.AlbumID, input.Rating))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record rating: %w", err)
	}

	session, err := e.RecomputeProgress(input.UserID, input.AlbumID)
	if err != nil {
		return nil, nil, err
	}

	e.logger.Debug("recorded rating",
		"user_id", input.UserID, "track_id", input.TrackID,
		"album_id", input.AlbumID, "rating", input.Rating)

	return rating, session, nil
}

func (e *Engine) mapValidationError(input RatingInput, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if fe.Field() == "Rating" {
				return fmt.Errorf("%w: rating %d must be between %d and %d",
					shared.ErrOutOfRange, input.Rating, models.RatingMin, models.RatingMax)
			}
		}
		return fmt.Errorf("%w: %s", shared.ErrMissingField, fieldErrs[0].Field())
	}
	return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
}

// RecomputeProgress recomputes a session's aggregate exactly from the
// persisted rating rows. A missing session is created with an unknown track
// total; it can never complete until the real total is learned from the
// catalog via GetOrCreateSession.
func (e *Engine) RecomputeProgress(userID, albumSpotifyID string) (*models.RatingSession, error) {
	session, err := e.sessions.GetByUserAlbum(userID, albumSpotifyID)
	if err != nil {
		if !errors.Is(err, shared.ErrSessionNotFound) {
			return nil, err
		}
		session, err = e.sessions.GetOrCreate(userID, albumSpotifyID, 0)
		if err != nil {
			return nil, err
		}
	}

	count, average, err := e.ratings.CountAndAverage(userID, albumSpotifyID)
	if err != nil {
		return nil, err
	}

	var avg *float64
	if average.Valid {
		value := average.Float64
		avg = &value
	}

	session.ApplyProgress(count, avg, time.Now())
	if err := e.sessions.Update(session); err != nil {
		return nil, err
	}

	return session, nil
}

// AttachAlbum links a session to its cached album row once the album
// metadata has been persisted. No-op when already linked.
func (e *Engine) AttachAlbum(session *models.RatingSession, albumRowID string) error {
	if session.AlbumID() == albumRowID || albumRowID == "" {
		return nil
	}
	session.SetAlbumID(albumRowID)
	return e.sessions.Update(session)
}

// CompletionPercentage returns a session's rated/total percentage.
func (e *Engine) CompletionPercentage(session *models.RatingSession) float64 {
	return session.CompletionPercentage()
}

// ClearAlbum removes all of a user's ratings for an album and the album's
// session, abandoning the rating run.
func (e *Engine) ClearAlbum(userID, albumSpotifyID string) (int, error) {
	removed, err := e.ratings.DeleteByUserAlbum(userID, albumSpotifyID)
	if err != nil {
		return 0, err
	}

	if err := e.sessions.DeleteByUserAlbum(userID, albumSpotifyID); err != nil {
		return removed, err
	}

	e.logger.Info("cleared album ratings", "user_id", userID, "album_id", albumSpotifyID, "removed", removed)

	return removed, nil
}

// AlbumRatings returns track_spotify_id -> value for one user and album.
func (e *Engine) AlbumRatings(userID, albumSpotifyID string) (map[string]int, error) {
	return e.ratings.MapByUserAlbum(userID, albumSpotifyID)
}

// Sessions lists a user's sessions, optionally only completed ones.
func (e *Engine) Sessions(userID string, completedOnly bool) ([]*models.RatingSession, error) {
	criteria := map[string]any{"user_id": userID}
	if completedOnly {
		criteria["completed"] = true
	}
	return e.sessions.List(criteria)
}

// UserStats summarizes the user's rating activity.
func (e *Engine) UserStats(userID string) (*repositories.SessionStats, error) {
	return e.sessions.Stats(userID)
}
