package main

import (
	"context"

	"github.com/mkbell/discme/internal/ratings"
	"github.com/urfave/cli/v3"
)

// Rate records a track rating and reports the album session's new progress.
func (r *Runner) Rate(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.String("track")
	albumID := cmd.String("album")
	value := cmd.Int("rating")
	useJSON := cmd.Bool("json")

	user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}

	rating, session, err := r.engine.RecordRating(ratings.RatingInput{
		UserID:  user.ID(),
		TrackID: trackID,
		AlbumID: albumID,
		Rating:  int(value),
	})
	if err != nil {
		return err
	}

	if useJSON {
		return r.writeJSON(map[string]any{
			"rating":  rating.Map(),
			"session": session.Map(),
		}, true)
	}

	r.writePlain("✓ Rated track %s: %d/10\n", trackID, rating.Value())
	r.writePlain("  Progress: %d/%d rated (%.1f%%)\n", session.RatedTracks(), session.TotalTracks(), session.CompletionPercentage())
	if avg := session.AverageRating(); avg != nil {
		r.writePlain("  Average rating: %.2f\n", *avg)
	}
	if session.IsCompleted() {
		r.writePlain("  ✓ Album completed!\n")
	}

	return nil
}
