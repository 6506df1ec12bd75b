package models

// Album represents a Spotify album as returned by the catalog.
type Album struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	ArtistName  string   `json:"artist_name"`
	ArtistID    string   `json:"artist_spotify_id"`
	ImageURL    string   `json:"image_url"`
	ReleaseDate string   `json:"release_date"`
	TotalTracks int      `json:"total_tracks"`
	AlbumType   string   `json:"album_type"`
	Genres      []string `json:"genres,omitempty"`
}

// SavedAlbum represents an album in the user's library with the time it was saved.
type SavedAlbum struct {
	AddedAt string `json:"added_at"`
	Album   Album  `json:"album"`
}

// Track represents a track within an album as returned by the catalog.
type Track struct {
	ID          string `json:"id"`
	AlbumID     string `json:"album_spotify_id"`
	Name        string `json:"name"`
	ArtistName  string `json:"artist_name"`
	TrackNumber int    `json:"track_number"`
	DurationMS  int    `json:"duration_ms"`
	PreviewURL  string `json:"preview_url,omitempty"`
	Explicit    bool   `json:"explicit"`
}

// Artist represents a Spotify artist.
type Artist struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Genres    []string `json:"genres,omitempty"`
	ImageURL  string   `json:"image_url,omitempty"`
	Followers int      `json:"followers"`
}
