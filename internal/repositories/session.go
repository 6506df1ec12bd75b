package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/shared"
)

// SessionRepository implements [models.Repository] for [models.RatingSession] persistence.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, sequence, user_id, album_id, album_spotify_id, total_tracks,
	rated_tracks, average_rating, is_completed, started_at, completed_at, last_activity`

func scanSession(row interface{ Scan(...any) error }) (*models.RatingSession, error) {
	var (
		sessionID      string
		sequence       int
		userID         string
		albumID        sql.NullString
		albumSpotifyID string
		totalTracks    int
		ratedTracks    int
		averageRating  sql.NullFloat64
		isCompleted    bool
		startedAt      time.Time
		completedAt    sql.NullTime
		lastActivity   time.Time
	)

	err := row.Scan(&sessionID, &sequence, &userID, &albumID, &albumSpotifyID, &totalTracks,
		&ratedTracks, &averageRating, &isCompleted, &startedAt, &completedAt, &lastActivity)
	if err != nil {
		return nil, err
	}

	session := models.NewRatingSession(sequence, userID, albumSpotifyID, totalTracks)
	session.SetID(sessionID)
	session.SetAlbumID(albumID.String)
	session.SetRatedTracks(ratedTracks)
	if averageRating.Valid {
		avg := averageRating.Float64
		session.SetAverageRating(&avg)
	}
	session.SetCompleted(isCompleted)
	session.SetStartedAt(startedAt)
	if completedAt.Valid {
		at := completedAt.Time
		session.SetCompletedAt(&at)
	}
	session.SetLastActivity(lastActivity)

	return session, nil
}

// Create inserts a new session into the database with generated ID and sequence
func (r *SessionRepository) Create(session *models.RatingSession) error {
	sequence, err := NextSequence(r.db, "album_sessions")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	session.SetID(id)
	session.SetSequence(sequence)

	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO album_sessions (id, sequence, user_id, album_id, album_spotify_id,
			total_tracks, rated_tracks, average_rating, is_completed, started_at, completed_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, session.UserID(), nullableString(session.AlbumID()),
		session.AlbumSpotifyID(), session.TotalTracks(), session.RatedTracks(),
		nullableFloat(session.AverageRating()), session.IsCompleted(), session.StartedAt(),
		nullableTime(session.CompletedAt()), session.LastActivity())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// GetOrCreate returns the session for a (user, album) pair, inserting a fresh
// one when none exists. The insert is a no-op on conflict, so an existing
// session keeps its original total_tracks even if the catalog now reports a
// different count.
func (r *SessionRepository) GetOrCreate(userID, albumSpotifyID string, totalTracks int) (*models.RatingSession, error) {
	sequence, err := NextSequence(r.db, "album_sessions")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	session := models.NewRatingSession(sequence, userID, albumSpotifyID, totalTracks)
	session.SetID(shared.GenerateID())

	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO album_sessions (id, sequence, user_id, album_id, album_spotify_id,
			total_tracks, rated_tracks, average_rating, is_completed, started_at, completed_at, last_activity)
		VALUES (?, ?, ?, NULL, ?, ?, 0, NULL, 0, ?, NULL, ?)
		ON CONFLICT (user_id, album_spotify_id) DO NOTHING
	`

	_, err = r.db.Exec(query, session.ID(), sequence, userID, albumSpotifyID, totalTracks,
		session.StartedAt(), session.LastActivity())
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return r.GetByUserAlbum(userID, albumSpotifyID)
}

// Get retrieves a session by internal ID
func (r *SessionRepository) Get(id string) (*models.RatingSession, error) {
	query := fmt.Sprintf("SELECT %s FROM album_sessions WHERE id = ?", sessionColumns)

	session, err := scanSession(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return session, nil
}

// GetByUserAlbum retrieves the session for a (user, album) pair
func (r *SessionRepository) GetByUserAlbum(userID, albumSpotifyID string) (*models.RatingSession, error) {
	query := fmt.Sprintf("SELECT %s FROM album_sessions WHERE user_id = ? AND album_spotify_id = ?", sessionColumns)

	session, err := scanSession(r.db.QueryRow(query, userID, albumSpotifyID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: album %s", shared.ErrSessionNotFound, albumSpotifyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return session, nil
}

// Update persists the aggregate fields of an existing session
func (r *SessionRepository) Update(session *models.RatingSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE album_sessions
		SET album_id = ?, total_tracks = ?, rated_tracks = ?, average_rating = ?,
			is_completed = ?, completed_at = ?, last_activity = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, nullableString(session.AlbumID()), session.TotalTracks(),
		session.RatedTracks(), nullableFloat(session.AverageRating()), session.IsCompleted(),
		nullableTime(session.CompletedAt()), session.LastActivity(), session.ID())
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, session.ID())
	}

	return nil
}

// Delete removes a session by ID
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM album_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, id)
	}

	return nil
}

// DeleteByUserAlbum removes the session for a (user, album) pair if present.
func (r *SessionRepository) DeleteByUserAlbum(userID, albumSpotifyID string) error {
	_, err := r.db.Exec("DELETE FROM album_sessions WHERE user_id = ? AND album_spotify_id = ?",
		userID, albumSpotifyID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List retrieves all sessions matching the given criteria, most recent activity first
func (r *SessionRepository) List(criteria map[string]any) ([]*models.RatingSession, error) {
	query := fmt.Sprintf("SELECT %s FROM album_sessions WHERE 1=1", sessionColumns)

	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if completed, ok := criteria["completed"].(bool); ok && completed {
		query += " AND is_completed = 1"
	}

	query += " ORDER BY last_activity DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.RatingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return sessions, nil
}

// SessionStats summarizes a user's rating activity across all sessions.
type SessionStats struct {
	TotalSessions     int      `json:"total_sessions"`
	CompletedSessions int      `json:"completed_sessions"`
	TotalRatings      int      `json:"total_ratings"`
	OverallAverage    *float64 `json:"overall_average"`
}

// Stats computes aggregate counts and the mean of all the user's ratings.
func (r *SessionRepository) Stats(userID string) (*SessionStats, error) {
	stats := &SessionStats{}

	query := `
		SELECT COUNT(*), COALESCE(SUM(is_completed), 0)
		FROM album_sessions
		WHERE user_id = ?
	`
	if err := r.db.QueryRow(query, userID).Scan(&stats.TotalSessions, &stats.CompletedSessions); err != nil {
		return nil, fmt.Errorf("failed to aggregate sessions: %w", err)
	}

	var average sql.NullFloat64
	query = `SELECT COUNT(*), AVG(rating) FROM ratings WHERE user_id = ?`
	if err := r.db.QueryRow(query, userID).Scan(&stats.TotalRatings, &average); err != nil {
		return nil, fmt.Errorf("failed to aggregate ratings: %w", err)
	}
	if average.Valid {
		avg := average.Float64
		stats.OverallAverage = &avg
	}

	return stats, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
