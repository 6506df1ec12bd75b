package models

import (
	"fmt"
	"time"
)

// PersistedAlbum is the locally cached metadata for a Spotify album.
//
// Cached the first time an album's tracks are fetched so sessions can link
// to it and exports don't need another catalog round trip.
type PersistedAlbum struct {
	id              string
	sequence        int
	spotifyID       string
	name            string
	artistName      string
	artistSpotifyID string
	imageURL        string
	releaseDate     string
	totalTracks     int
	albumType       string
	createdAt       time.Time
	updatedAt       time.Time
}

// NewPersistedAlbum creates a PersistedAlbum from a catalog Album DTO.
func NewPersistedAlbum(sequence int, album Album) *PersistedAlbum {
	now := time.Now()
	return &PersistedAlbum{
		sequence:        sequence,
		spotifyID:       album.ID,
		name:            album.Name,
		artistName:      album.ArtistName,
		artistSpotifyID: album.ArtistID,
		imageURL:        album.ImageURL,
		releaseDate:     album.ReleaseDate,
		totalTracks:     album.TotalTracks,
		albumType:       album.AlbumType,
		createdAt:       now,
		updatedAt:       now,
	}
}

func (a *PersistedAlbum) ID() string              { return a.id }
func (a *PersistedAlbum) Sequence() int           { return a.sequence }
func (a *PersistedAlbum) SpotifyID() string       { return a.spotifyID }
func (a *PersistedAlbum) Name() string            { return a.name }
func (a *PersistedAlbum) ArtistName() string      { return a.artistName }
func (a *PersistedAlbum) ArtistSpotifyID() string { return a.artistSpotifyID }
func (a *PersistedAlbum) ImageURL() string        { return a.imageURL }
func (a *PersistedAlbum) ReleaseDate() string     { return a.releaseDate }
func (a *PersistedAlbum) TotalTracks() int        { return a.totalTracks }
func (a *PersistedAlbum) AlbumType() string       { return a.albumType }
func (a *PersistedAlbum) CreatedAt() time.Time    { return a.createdAt }
func (a *PersistedAlbum) UpdatedAt() time.Time    { return a.updatedAt }

func (a *PersistedAlbum) SetID(id string)          { a.id = id }
func (a *PersistedAlbum) SetSequence(sequence int) { a.sequence = sequence }
func (a *PersistedAlbum) SetCreatedAt(t time.Time) { a.createdAt = t }
func (a *PersistedAlbum) SetUpdatedAt(t time.Time) { a.updatedAt = t }

// Validate checks required fields.
func (a *PersistedAlbum) Validate() error {
	if a.spotifyID == "" {
		return fmt.Errorf("album spotify_id is required")
	}
	if a.name == "" {
		return fmt.Errorf("album name is required")
	}
	return nil
}

// Map returns the JSON projection of the album.
func (a *PersistedAlbum) Map() map[string]any {
	return map[string]any{
		"id":                a.id,
		"spotify_id":        a.spotifyID,
		"name":              a.name,
		"artist_name":       a.artistName,
		"artist_spotify_id": a.artistSpotifyID,
		"image_url":         a.imageURL,
		"release_date":      a.releaseDate,
		"total_tracks":      a.totalTracks,
		"album_type":        a.albumType,
	}
}
