package models

import (
	"fmt"
	"math"
	"time"
)

// RatingSession is the per-user-per-album rating progress aggregate.
//
// Unique per (user, album_spotify_id). Created lazily the first time a
// track in the album is fetched or rated, recomputed after every rating
// write. Once is_completed becomes true it stays true, and completed_at
// is set exactly once, on the transition.
type RatingSession struct {
	id             string
	sequence       int
	userID         string
	albumID        string // internal albums row, empty when metadata was never persisted
	albumSpotifyID string
	totalTracks    int
	ratedTracks    int
	averageRating  *float64
	isCompleted    bool
	startedAt      time.Time
	completedAt    *time.Time
	lastActivity   time.Time
}

// NewRatingSession creates a fresh session with no rated tracks.
func NewRatingSession(sequence int, userID, albumSpotifyID string, totalTracks int) *RatingSession {
	now := time.Now()
	return &RatingSession{
		sequence:       sequence,
		userID:         userID,
		albumSpotifyID: albumSpotifyID,
		totalTracks:    totalTracks,
		startedAt:      now,
		lastActivity:   now,
	}
}

func (s *RatingSession) ID() string              { return s.id }
func (s *RatingSession) Sequence() int           { return s.sequence }
func (s *RatingSession) UserID() string          { return s.userID }
func (s *RatingSession) AlbumID() string         { return s.albumID }
func (s *RatingSession) AlbumSpotifyID() string  { return s.albumSpotifyID }
func (s *RatingSession) TotalTracks() int        { return s.totalTracks }
func (s *RatingSession) RatedTracks() int        { return s.ratedTracks }
func (s *RatingSession) AverageRating() *float64 { return s.averageRating }
func (s *RatingSession) IsCompleted() bool       { return s.isCompleted }
func (s *RatingSession) StartedAt() time.Time    { return s.startedAt }
func (s *RatingSession) CompletedAt() *time.Time { return s.completedAt }
func (s *RatingSession) LastActivity() time.Time { return s.lastActivity }

// CreatedAt and UpdatedAt satisfy [Model]; sessions track started_at and
// last_activity instead of the usual pair.
func (s *RatingSession) CreatedAt() time.Time { return s.startedAt }
func (s *RatingSession) UpdatedAt() time.Time { return s.lastActivity }

func (s *RatingSession) SetID(id string)               { s.id = id }
func (s *RatingSession) SetSequence(sequence int)      { s.sequence = sequence }
func (s *RatingSession) SetAlbumID(albumID string)     { s.albumID = albumID }
func (s *RatingSession) SetTotalTracks(total int)      { s.totalTracks = total }
func (s *RatingSession) SetStartedAt(t time.Time)      { s.startedAt = t }
func (s *RatingSession) SetLastActivity(t time.Time)   { s.lastActivity = t }
func (s *RatingSession) SetCompletedAt(t *time.Time)   { s.completedAt = t }
func (s *RatingSession) SetRatedTracks(count int)      { s.ratedTracks = count }
func (s *RatingSession) SetAverageRating(avg *float64) { s.averageRating = avg }
func (s *RatingSession) SetCompleted(completed bool)   { s.isCompleted = completed }

// ApplyProgress updates the aggregate from a fresh count and average,
// preserving the monotone completion invariant: a completed session never
// becomes incomplete, and completed_at is written only on the transition.
func (s *RatingSession) ApplyProgress(ratedCount int, average *float64, now time.Time) {
	s.ratedTracks = ratedCount
	s.averageRating = average
	s.lastActivity = now

	if s.totalTracks > 0 && ratedCount >= s.totalTracks && !s.isCompleted {
		s.isCompleted = true
		if s.completedAt == nil {
			at := now
			s.completedAt = &at
		}
	}
}

// CompletionPercentage returns rated/total as a percentage rounded to one
// decimal place, or 0 when the track count is zero or unknown.
func (s *RatingSession) CompletionPercentage() float64 {
	if s.totalTracks <= 0 {
		return 0
	}
	pct := float64(s.ratedTracks) / float64(s.totalTracks) * 100
	return math.Round(pct*10) / 10
}

// Validate checks required fields.
func (s *RatingSession) Validate() error {
	if s.userID == "" {
		return fmt.Errorf("session user_id is required")
	}
	if s.albumSpotifyID == "" {
		return fmt.Errorf("session album_spotify_id is required")
	}
	if s.ratedTracks < 0 || s.totalTracks < 0 {
		return fmt.Errorf("session track counts must be non-negative")
	}
	return nil
}

// Map returns the JSON projection of the session.
func (s *RatingSession) Map() map[string]any {
	var avg any
	if s.averageRating != nil {
		avg = math.Round(*s.averageRating*100) / 100
	}

	var completedAt any
	if s.completedAt != nil {
		completedAt = s.completedAt.Format(time.RFC3339)
	}

	return map[string]any{
		"id":                    s.id,
		"user_id":               s.userID,
		"album_spotify_id":      s.albumSpotifyID,
		"total_tracks":          s.totalTracks,
		"rated_tracks":          s.ratedTracks,
		"average_rating":        avg,
		"is_completed":          s.isCompleted,
		"completion_percentage": s.CompletionPercentage(),
		"started_at":            s.startedAt.Format(time.RFC3339),
		"completed_at":          completedAt,
		"last_activity":         s.lastActivity.Format(time.RFC3339),
	}
}
