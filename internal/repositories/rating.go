package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/shared"
)

// RatingRepository implements [models.Repository] for [models.Rating] persistence.
type RatingRepository struct {
	db *sql.DB
}

// NewRatingRepository creates a new [RatingRepository] with the given database connection
func NewRatingRepository(db *sql.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

const ratingColumns = `id, sequence, user_id, track_spotify_id, album_spotify_id, rating, created_at, updated_at`

func scanRating(row interface{ Scan(...any) error }) (*models.Rating, error) {
	var (
		ratingID       string
		sequence       int
		userID         string
		trackSpotifyID string
		albumSpotifyID string
		value          int
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(&ratingID, &sequence, &userID, &trackSpotifyID, &albumSpotifyID,
		&value, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rating := models.NewRating(sequence, userID, trackSpotifyID, albumSpotifyID, value)
	rating.SetID(ratingID)
	rating.SetCreatedAt(createdAt)
	rating.SetUpdatedAt(updatedAt)

	return rating, nil
}

// Create inserts a new rating into the database with generated ID and sequence
func (r *RatingRepository) Create(rating *models.Rating) error {
	sequence, err := NextSequence(r.db, "ratings")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	rating.SetID(id)
	rating.SetSequence(sequence)

	if err := rating.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO ratings (id, sequence, user_id, track_spotify_id, album_spotify_id, rating, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, rating.UserID(), rating.TrackSpotifyID(),
		rating.AlbumSpotifyID(), rating.Value(), rating.CreatedAt(), rating.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert rating: %w", err)
	}

	return nil
}

// Upsert inserts a rating or, when the (user, track) pair already exists,
// updates the value and updated_at of the existing row. The canonical row is
// returned; re-rating a track never produces a second row.
func (r *RatingRepository) Upsert(rating *models.Rating) (*models.Rating, error) {
	sequence, err := NextSequence(r.db, "ratings")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	rating.SetID(id)
	rating.SetSequence(sequence)

	if err := rating.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO ratings (id, sequence, user_id, track_spotify_id, album_spotify_id, rating, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, track_spotify_id) DO UPDATE SET
			rating = excluded.rating,
			album_spotify_id = excluded.album_spotify_id,
			updated_at = excluded.updated_at
	`

	_, err = r.db.Exec(query, id, sequence, rating.UserID(), rating.TrackSpotifyID(),
		rating.AlbumSpotifyID(), rating.Value(), rating.CreatedAt(), rating.UpdatedAt())
	if err != nil {
		return nil, fmt.Errorf("failed to upsert rating: %w", err)
	}

	return r.GetByUserTrack(rating.UserID(), rating.TrackSpotifyID())
}

// Get retrieves a rating by internal ID
func (r *RatingRepository) Get(id string) (*models.Rating, error) {
	query := fmt.Sprintf("SELECT %s FROM ratings WHERE id = ?", ratingColumns)

	rating, err := scanRating(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rating not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rating: %w", err)
	}

	return rating, nil
}

// GetByUserTrack retrieves the single rating for a (user, track) pair
func (r *RatingRepository) GetByUserTrack(userID, trackSpotifyID string) (*models.Rating, error) {
	query := fmt.Sprintf("SELECT %s FROM ratings WHERE user_id = ? AND track_spotify_id = ?", ratingColumns)

	rating, err := scanRating(r.db.QueryRow(query, userID, trackSpotifyID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rating not found for track %s", trackSpotifyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rating: %w", err)
	}

	return rating, nil
}

// ListByUserAlbum retrieves all of a user's ratings within one album, ordered by creation
func (r *RatingRepository) ListByUserAlbum(userID, albumSpotifyID string) ([]*models.Rating, error) {
	query := fmt.Sprintf(`SELECT %s FROM ratings
		WHERE user_id = ? AND album_spotify_id = ?
		ORDER BY sequence ASC`, ratingColumns)

	rows, err := r.db.Query(query, userID, albumSpotifyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	var ratings []*models.Rating
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rating)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ratings, nil
}

// MapByUserAlbum returns track_spotify_id -> rating value for one user and album.
func (r *RatingRepository) MapByUserAlbum(userID, albumSpotifyID string) (map[string]int, error) {
	ratings, err := r.ListByUserAlbum(userID, albumSpotifyID)
	if err != nil {
		return nil, err
	}

	byTrack := make(map[string]int, len(ratings))
	for _, rating := range ratings {
		byTrack[rating.TrackSpotifyID()] = rating.Value()
	}

	return byTrack, nil
}

// CountAndAverage returns the number of rated tracks and the mean rating for
// one user and album, computed from the persisted rows in a single query.
// The average is NULL when no ratings exist.
func (r *RatingRepository) CountAndAverage(userID, albumSpotifyID string) (int, sql.NullFloat64, error) {
	query := `
		SELECT COUNT(*), AVG(rating)
		FROM ratings
		WHERE user_id = ? AND album_spotify_id = ?
	`

	var (
		count   int
		average sql.NullFloat64
	)

	err := r.db.QueryRow(query, userID, albumSpotifyID).Scan(&count, &average)
	if err != nil {
		return 0, sql.NullFloat64{}, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	return count, average, nil
}

// Update modifies an existing rating in the database
func (r *RatingRepository) Update(rating *models.Rating) error {
	if err := rating.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	rating.SetUpdatedAt(now)

	query := `
		UPDATE ratings
		SET rating = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, rating.Value(), now, rating.ID())
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("rating not found: %s", rating.ID())
	}

	return nil
}

// Delete removes a rating by ID
func (r *RatingRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM ratings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete rating: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("rating not found: %s", id)
	}

	return nil
}

// DeleteByUserAlbum removes all of a user's ratings for one album and returns
// the number of rows removed.
func (r *RatingRepository) DeleteByUserAlbum(userID, albumSpotifyID string) (int, error) {
	result, err := r.db.Exec("DELETE FROM ratings WHERE user_id = ? AND album_spotify_id = ?",
		userID, albumSpotifyID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete ratings: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(rows), nil
}

// List retrieves all ratings matching the given criteria
func (r *RatingRepository) List(criteria map[string]any) ([]*models.Rating, error) {
	query := fmt.Sprintf("SELECT %s FROM ratings WHERE 1=1", ratingColumns)

	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if albumID, ok := criteria["album_spotify_id"].(string); ok && albumID != "" {
		query += " AND album_spotify_id = ?"
		args = append(args, albumID)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ratings: %w", err)
	}
	defer rows.Close()

	var ratings []*models.Rating
	for rows.Next() {
		rating, err := scanRating(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rating)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return ratings, nil
}
