package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/shared"
)

// AlbumRepository implements [models.Repository] for [models.PersistedAlbum] persistence.
//
// Albums are a metadata cache: rows are written the first time an album's
// tracks are fetched so exports and session listings don't need the catalog.
type AlbumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new [AlbumRepository] with the given database connection
func NewAlbumRepository(db *sql.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

const albumColumns = `id, sequence, spotify_id, name, artist_name, artist_spotify_id,
	image_url, release_date, total_tracks, album_type, created_at, updated_at`

func scanAlbum(row interface{ Scan(...any) error }) (*models.PersistedAlbum, error) {
	var (
		albumID         string
		sequence        int
		spotifyID       string
		name            string
		artistName      string
		artistSpotifyID sql.NullString
		imageURL        sql.NullString
		releaseDate     sql.NullString
		totalTracks     int
		albumType       sql.NullString
		createdAt       time.Time
		updatedAt       time.Time
	)

	err := row.Scan(&albumID, &sequence, &spotifyID, &name, &artistName, &artistSpotifyID,
		&imageURL, &releaseDate, &totalTracks, &albumType, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	album := models.NewPersistedAlbum(sequence, models.Album{
		ID:          spotifyID,
		Name:        name,
		ArtistName:  artistName,
		ArtistID:    artistSpotifyID.String,
		ImageURL:    imageURL.String,
		ReleaseDate: releaseDate.String,
		TotalTracks: totalTracks,
		AlbumType:   albumType.String,
	})
	album.SetID(albumID)
	album.SetCreatedAt(createdAt)
	album.SetUpdatedAt(updatedAt)

	return album, nil
}

// Create inserts a new album into the database with generated ID and sequence
func (r *AlbumRepository) Create(album *models.PersistedAlbum) error {
	sequence, err := NextSequence(r.db, "albums")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	album.SetID(id)
	album.SetSequence(sequence)

	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO albums (id, sequence, spotify_id, name, artist_name, artist_spotify_id,
			image_url, release_date, total_tracks, album_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, album.SpotifyID(), album.Name(), album.ArtistName(),
		album.ArtistSpotifyID(), album.ImageURL(), album.ReleaseDate(), album.TotalTracks(),
		album.AlbumType(), album.CreatedAt(), album.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert album: %w", err)
	}

	return nil
}

// CacheFromCatalog upserts a catalog album DTO and returns the persisted row.
func (r *AlbumRepository) CacheFromCatalog(dto models.Album) (*models.PersistedAlbum, error) {
	sequence, err := NextSequence(r.db, "albums")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	album := models.NewPersistedAlbum(sequence, dto)
	album.SetID(shared.GenerateID())

	if err := album.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO albums (id, sequence, spotify_id, name, artist_name, artist_spotify_id,
			image_url, release_date, total_tracks, album_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (spotify_id) DO UPDATE SET
			name = excluded.name,
			artist_name = excluded.artist_name,
			artist_spotify_id = excluded.artist_spotify_id,
			image_url = excluded.image_url,
			release_date = excluded.release_date,
			total_tracks = excluded.total_tracks,
			album_type = excluded.album_type,
			updated_at = excluded.updated_at
	`

	_, err = r.db.Exec(query, album.ID(), sequence, album.SpotifyID(), album.Name(),
		album.ArtistName(), album.ArtistSpotifyID(), album.ImageURL(), album.ReleaseDate(),
		album.TotalTracks(), album.AlbumType(), album.CreatedAt(), album.UpdatedAt())
	if err != nil {
		return nil, fmt.Errorf("failed to cache album: %w", err)
	}

	return r.GetBySpotifyID(album.SpotifyID())
}

// Get retrieves an album by internal ID
func (r *AlbumRepository) Get(id string) (*models.PersistedAlbum, error) {
	query := fmt.Sprintf("SELECT %s FROM albums WHERE id = ?", albumColumns)

	album, err := scanAlbum(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query album: %w", err)
	}

	return album, nil
}

// GetBySpotifyID retrieves an album by its Spotify identifier
func (r *AlbumRepository) GetBySpotifyID(spotifyID string) (*models.PersistedAlbum, error) {
	query := fmt.Sprintf("SELECT %s FROM albums WHERE spotify_id = ?", albumColumns)

	album, err := scanAlbum(r.db.QueryRow(query, spotifyID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, spotifyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query album: %w", err)
	}

	return album, nil
}

// Update modifies an existing album in the database
func (r *AlbumRepository) Update(album *models.PersistedAlbum) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	album.SetUpdatedAt(now)

	query := `
		UPDATE albums
		SET name = ?, artist_name = ?, artist_spotify_id = ?, image_url = ?,
			release_date = ?, total_tracks = ?, album_type = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, album.Name(), album.ArtistName(), album.ArtistSpotifyID(),
		album.ImageURL(), album.ReleaseDate(), album.TotalTracks(), album.AlbumType(), now, album.ID())
	if err != nil {
		return fmt.Errorf("failed to update album: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, album.ID())
	}

	return nil
}

// Delete removes an album by ID
func (r *AlbumRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM albums WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete album: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, id)
	}

	return nil
}

// List retrieves all cached albums matching the given criteria
func (r *AlbumRepository) List(criteria map[string]any) ([]*models.PersistedAlbum, error) {
	query := fmt.Sprintf("SELECT %s FROM albums WHERE 1=1", albumColumns)

	args := []any{}

	if artist, ok := criteria["artist_name"].(string); ok && artist != "" {
		query += " AND artist_name = ?"
		args = append(args, artist)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []*models.PersistedAlbum
	for rows.Next() {
		album, err := scanAlbum(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan album: %w", err)
		}
		albums = append(albums, album)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return albums, nil
}
