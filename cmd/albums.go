package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mkbell/discme/internal/shared"
	"github.com/urfave/cli/v3"
)

// AlbumsList lists the albums saved in the user's Spotify library.
func (r *Runner) AlbumsList(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")
	save := cmd.Bool("save")

	if err := r.requireCatalog(); err != nil {
		return err
	}

	user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}

	r.logger.Infof("listing saved albums with limit %v", limit)

	albums, err := r.catalog.SavedAlbums(ctx, user.AccessToken())
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if limit > 0 && limit < len(albums) {
		albums = albums[:limit]
	}

	if save {
		saveFile := "saved_albums.json"
		data, err := shared.MarshalJSON(albums, true)
		if err != nil {
			return fmt.Errorf("failed to marshal albums: %w", err)
		}
		if err := os.WriteFile(saveFile, data, 0644); err != nil {
			r.logger.Warn("failed to save albums", "error", err)
		} else {
			r.logger.Info("albums saved", "file", saveFile)
		}
	}

	if useJSON {
		return r.writeJSON(albums, pretty)
	}

	r.writePlain("Found %d saved albums:\n\n", len(albums))
	for i, saved := range albums {
		album := saved.Album
		r.writePlain("%d. %s — %s\n", i+1, album.ArtistName, album.Name)
		r.writePlain("   ID: %s\n", album.ID)
		r.writePlain("   Tracks: %d\n", album.TotalTracks)
		if album.ReleaseDate != "" {
			r.writePlain("   Released: %s\n", album.ReleaseDate)
		}
		r.writePlain("\n")
	}

	return nil
}

// AlbumTracks lists an album's tracks with the user's ratings and session progress.
func (r *Runner) AlbumTracks(ctx context.Context, cmd *cli.Command) error {
	albumID := cmd.StringArg("album-id")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if albumID == "" {
		return fmt.Errorf("%w: album-id argument is required", shared.ErrMissingArgument)
	}

	if err := r.requireCatalog(); err != nil {
		return err
	}

	user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}

	album, err := r.catalog.Album(ctx, user.AccessToken(), albumID)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	tracks, err := r.catalog.AlbumTracks(ctx, user.AccessToken(), albumID)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	session, err := r.engine.GetOrCreateSession(user.ID(), albumID, album.TotalTracks)
	if err != nil {
		return fmt.Errorf("failed to load rating session: %w", err)
	}

	if cached, err := r.albums.CacheFromCatalog(*album); err != nil {
		r.logger.Warn("failed to cache album metadata", "album_id", albumID, "error", err)
	} else if err := r.engine.AttachAlbum(session, cached.ID()); err != nil {
		r.logger.Warn("failed to link session to album", "album_id", albumID, "error", err)
	}

	byTrack, err := r.engine.AlbumRatings(user.ID(), albumID)
	if err != nil {
		return fmt.Errorf("failed to load ratings: %w", err)
	}

	if useJSON {
		return r.writeJSON(map[string]any{
			"album":   album,
			"tracks":  tracks,
			"ratings": byTrack,
			"session": session.Map(),
		}, pretty)
	}

	r.writePlainHeader(fmt.Sprintf("%s — %s", album.ArtistName, album.Name))
	r.writePlain("Progress: %d/%d rated (%.1f%%)\n", session.RatedTracks(), session.TotalTracks(), session.CompletionPercentage())
	if avg := session.AverageRating(); avg != nil {
		r.writePlain("Average rating: %.2f\n", *avg)
	}
	if session.IsCompleted() {
		r.writePlain("Status: completed\n")
	}
	r.writePlain("\n")

	for _, track := range tracks {
		line := fmt.Sprintf("%d. %s [%s]", track.TrackNumber, track.Name, shared.FormatDuration(track.DurationMS))
		if value, ok := byTrack[track.ID]; ok {
			line += fmt.Sprintf(" — rated %d/10", value)
		}
		r.writePlain("%s\n", line)
	}

	return nil
}

// AlbumsSearch searches the catalog for albums and artists.
func (r *Runner) AlbumsSearch(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	if query == "" {
		return fmt.Errorf("%w: query argument is required", shared.ErrMissingArgument)
	}

	if err := r.requireCatalog(); err != nil {
		return err
	}

	user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}

	results, err := r.catalog.Search(ctx, user.AccessToken(), query)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if useJSON {
		return r.writeJSON(results, pretty)
	}

	r.writePlain("Albums:\n")
	for i, album := range results.Albums {
		r.writePlain("%d. %s — %s (%s)\n", i+1, album.ArtistName, album.Name, album.ID)
	}

	r.writePlain("\nArtists:\n")
	for i, artist := range results.Artists {
		r.writePlain("%d. %s (%s)\n", i+1, artist.Name, artist.ID)
	}

	return nil
}
