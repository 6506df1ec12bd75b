package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkbell/discme/internal/formatter"
	"github.com/mkbell/discme/internal/shared"
	"github.com/urfave/cli/v3"
)

// storedUserID returns the identity recorded by `discme auth login` without
// touching the catalog; used by commands that only read local state.
func (r *Runner) storedUserID() (string, error) {
	if err := r.openDatabase(); err != nil {
		return "", err
	}
	if r.config.Auth.UserID == "" {
		return "", fmt.Errorf("%w: run `discme auth login` first", shared.ErrNotAuthenticated)
	}
	return r.config.Auth.UserID, nil
}

// SessionsList lists the user's album rating sessions.
func (r *Runner) SessionsList(ctx context.Context, cmd *cli.Command) error {
	completedOnly := cmd.Bool("completed")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	userID, err := r.storedUserID()
	if err != nil {
		return err
	}

	sessions, err := r.engine.Sessions(userID, completedOnly)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if useJSON {
		items := make([]map[string]any, len(sessions))
		for i, session := range sessions {
			items[i] = session.Map()
		}
		return r.writeJSON(map[string]any{"items": items, "total": len(items)}, pretty)
	}

	r.writePlain("Found %d rating sessions:\n\n", len(sessions))
	for i, session := range sessions {
		status := "in progress"
		if session.IsCompleted() {
			status = "completed"
		}
		r.writePlain("%d. %s — %d/%d rated (%.1f%%), %s\n",
			i+1, session.AlbumSpotifyID(), session.RatedTracks(), session.TotalTracks(),
			session.CompletionPercentage(), status)
		if avg := session.AverageRating(); avg != nil {
			r.writePlain("   Average rating: %.2f\n", *avg)
		}
	}

	return nil
}

// SessionsStats summarizes the user's rating activity.
func (r *Runner) SessionsStats(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")

	userID, err := r.storedUserID()
	if err != nil {
		return err
	}

	stats, err := r.engine.UserStats(userID)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}

	if useJSON {
		return r.writeJSON(stats, true)
	}

	r.writePlainHeader("Rating Stats")
	r.writePlain("Sessions: %d (%d completed)\n", stats.TotalSessions, stats.CompletedSessions)
	r.writePlain("Tracks rated: %d\n", stats.TotalRatings)
	if stats.OverallAverage != nil {
		r.writePlain("Overall average: %.2f\n", *stats.OverallAverage)
	}

	return nil
}

// SessionsClear removes all ratings for an album and abandons its session.
func (r *Runner) SessionsClear(ctx context.Context, cmd *cli.Command) error {
	albumID := cmd.StringArg("album-id")
	if albumID == "" {
		return fmt.Errorf("%w: album-id argument is required", shared.ErrMissingArgument)
	}

	userID, err := r.storedUserID()
	if err != nil {
		return err
	}

	removed, err := r.engine.ClearAlbum(userID, albumID)
	if err != nil {
		return fmt.Errorf("failed to clear album: %w", err)
	}

	r.writePlain("✓ Removed %d ratings for album %s\n", removed, albumID)
	return nil
}

// SessionsExport exports an album's tracks and ratings to CSV, Markdown or text.
func (r *Runner) SessionsExport(ctx context.Context, cmd *cli.Command) error {
	albumID := cmd.StringArg("album-id")
	format := cmd.String("format")
	output := cmd.String("output")

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

	byTrack, err := r.engine.AlbumRatings(user.ID(), albumID)
	if err != nil {
		return fmt.Errorf("failed to load ratings: %w", err)
	}

	export := &formatter.AlbumExport{
		Album:   *album,
		Tracks:  tracks,
		Ratings: byTrack,
	}

	if session, err := r.sessions.GetByUserAlbum(user.ID(), albumID); err == nil {
		export.Session = session
	} else if !errors.Is(err, shared.ErrSessionNotFound) {
		return fmt.Errorf("failed to load session: %w", err)
	}

	switch format {
	case "csv":
		result, err := formatter.WriteCSVExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported tracks to %s\n", result.TracksFile)
		r.writePlain("✓ Exported metadata to %s\n", result.MetadataFile)
	case "markdown", "md":
		result, err := formatter.WriteMarkdownExport(export, output, album.ImageURL)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported album to %s\n", result.Directory)
		for _, file := range result.Files {
			r.writePlain("  %s\n", file)
		}
	case "text", "txt":
		written, err := formatter.WriteTextExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported album to %s\n", written)
	default:
		return fmt.Errorf("%w: unknown format %q, expected csv, markdown or text", shared.ErrInvalidInput, format)
	}

	return nil
}
