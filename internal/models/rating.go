package models

import (
	"fmt"
	"time"
)

// Rating bounds for a single track rating.
const (
	RatingMin = 1
	RatingMax = 10
)

// Rating is one user's rating of one track within one album.
//
// At most one rating exists per (user, track) pair; re-rating updates the
// value and updated_at in place rather than inserting a duplicate.
type Rating struct {
	id             string
	sequence       int
	userID         string
	trackSpotifyID string
	albumSpotifyID string
	value          int
	createdAt      time.Time
	updatedAt      time.Time
}

// NewRating creates a new Rating for the given (user, track, album) triple.
func NewRating(sequence int, userID, trackSpotifyID, albumSpotifyID string, value int) *Rating {
	now := time.Now()
	return &Rating{
		sequence:       sequence,
		userID:         userID,
		trackSpotifyID: trackSpotifyID,
		albumSpotifyID: albumSpotifyID,
		value:          value,
		createdAt:      now,
		updatedAt:      now,
	}
}

func (r *Rating) ID() string             { return r.id }
func (r *Rating) Sequence() int          { return r.sequence }
func (r *Rating) UserID() string         { return r.userID }
func (r *Rating) TrackSpotifyID() string { return r.trackSpotifyID }
func (r *Rating) AlbumSpotifyID() string { return r.albumSpotifyID }
func (r *Rating) Value() int             { return r.value }
func (r *Rating) CreatedAt() time.Time   { return r.createdAt }
func (r *Rating) UpdatedAt() time.Time   { return r.updatedAt }

func (r *Rating) SetID(id string)          { r.id = id }
func (r *Rating) SetSequence(sequence int) { r.sequence = sequence }
func (r *Rating) SetCreatedAt(t time.Time) { r.createdAt = t }
func (r *Rating) SetUpdatedAt(t time.Time) { r.updatedAt = t }

// SetValue updates the rating value and bumps updated_at.
func (r *Rating) SetValue(value int) {
	r.value = value
	r.updatedAt = time.Now()
}

// Validate checks required fields and the rating range.
func (r *Rating) Validate() error {
	if r.userID == "" {
		return fmt.Errorf("rating user_id is required")
	}
	if r.trackSpotifyID == "" {
		return fmt.Errorf("rating track_spotify_id is required")
	}
	if r.albumSpotifyID == "" {
		return fmt.Errorf("rating album_spotify_id is required")
	}
	if r.value < RatingMin || r.value > RatingMax {
		return fmt.Errorf("rating value %d outside range %d-%d", r.value, RatingMin, RatingMax)
	}
	return nil
}

// Map returns the JSON projection of the rating.
func (r *Rating) Map() map[string]any {
	return map[string]any{
		"id":               r.id,
		"user_id":          r.userID,
		"track_spotify_id": r.trackSpotifyID,
		"album_spotify_id": r.albumSpotifyID,
		"rating":           r.value,
		"created_at":       r.createdAt.Format(time.RFC3339),
		"updated_at":       r.updatedAt.Format(time.RFC3339),
	}
}
