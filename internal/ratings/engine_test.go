package ratings

import (
	"database/sql"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/repositories"
	"github.com/mkbell/discme/internal/shared"
)

func setupEngine(t *testing.T) (*Engine, *models.User, *sql.DB) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	users := repositories.NewUserRepository(db)
	user := models.NewUser(0, "spotify_user_1", "Test User")
	if err := users.Create(user); err != nil {
		db.Close()
		t.Fatalf("failed to create user: %v", err)
	}

	engine := NewEngine(
		repositories.NewRatingRepository(db),
		repositories.NewSessionRepository(db),
		log.New(io.Discard),
	)

	return engine, user, db
}

func rate(t *testing.T, engine *Engine, userID, trackID, albumID string, value int) *models.RatingSession {
	t.Helper()

	_, session, err := engine.RecordRating(RatingInput{
		UserID:  userID,
		TrackID: trackID,
		AlbumID: albumID,
		Rating:  value,
	})
	if err != nil {
		t.Fatalf("failed to record rating: %v", err)
	}

	return session
}

func TestRecordRatingValidation(t *testing.T) {
	engine, user, db := setupEngine(t)
	defer db.Close()

	t.Run("AcceptsFullRange", func(t *testing.T) {
		for value := 1; value <= 10; value++ {
			if _, _, err := engine.RecordRating(RatingInput{
				UserID:  user.ID(),
				TrackID: "track_range",
				AlbumID: "album_range",
				Rating:  value,
			}); err != nil {
				t.Errorf("rating %d should be accepted: %v", value, err)
			}
		}
	})

	t.Run("RejectsOutOfRange", func(t *testing.T) {
		for _, value := range []int{0, 11, -3, 100} {
			_, _, err := engine.RecordRating(RatingInput{
				UserID:  user.ID(),
				TrackID: "track_bad",
				AlbumID: "album_bad",
				Rating:  value,
			})
			if !errors.Is(err, shared.ErrOutOfRange) {
				t.Errorf("rating %d should be out of range, got %v", value, err)
			}
		}
	})

	t.Run("RejectsMissingFields", func(t *testing.T) {
		_, _, err := engine.RecordRating(RatingInput{
			UserID:  user.ID(),
			AlbumID: "album_1",
			Rating:  5,
		})
		if !errors.Is(err, shared.ErrMissingField) {
			t.Errorf("expected ErrMissingField, got %v", err)
		}

		_, _, err = engine.RecordRating(RatingInput{
			TrackID: "track_1",
			AlbumID: "album_1",
			Rating:  5,
		})
		if !errors.Is(err, shared.ErrMissingField) {
			t.Errorf("expected ErrMissingField, got %v", err)
		}
	})
}

func TestReRatingDoesNotInflateProgress(t *testing.T) {
	engine, user, db := setupEngine(t)
	defer db.Close()

	if _, err := engine.GetOrCreateSession(user.ID(), "album_1", 10); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	session := rate(t, engine, user.ID(), "track_1", "album_1", 7)
	if session.RatedTracks() != 1 {
		t.Fatalf("expected 1 rated track, got %d", session.RatedTracks())
	}

	session = rate(t, engine, user.ID(), "track_1", "album_1", 3)
	if session.RatedTracks() != 1 {
		t.Errorf("re-rating should not bump the count, got %d", session.RatedTracks())
	}
	if session.AverageRating() == nil || *session.AverageRating() != 3.0 {
		t.Errorf("expected average 3.0 after re-rate, got %v", session.AverageRating())
	}
}

func TestAlbumRatingScenario(t *testing.T) {
	engine, user, db := setupEngine(t)
	defer db.Close()

	if _, err := engine.GetOrCreateSession(user.ID(), "album_1", 3); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	session := rate(t, engine, user.ID(), "track_1", "album_1", 8)
	if session.AverageRating() == nil || *session.AverageRating() != 8.0 {
		t.Errorf("expected average 8.0, got %v", session.AverageRating())
	}
	if session.IsCompleted() {
		t.Error("session should not complete at 1/3")
	}

	session = rate(t, engine, user.ID(), "track_2", "album_1", 6)
	if session.AverageRating() == nil || *session.AverageRating() != 7.0 {
		t.Errorf("expected average 7.0, got %v", session.AverageRating())
	}

	session = rate(t, engine, user.ID(), "track_3", "album_1", 7)
	if session.AverageRating() == nil || *session.AverageRating() != 7.0 {
		t.Errorf("expected average 7.0, got %v", session.AverageRating())
	}
	if !session.IsCompleted() {
		t.Error("session should complete at 3/3")
	}
	if session.CompletedAt() == nil {
		t.Error("expected completed_at to be set")
	}
	if session.CompletionPercentage() != 100.0 {
		t.Errorf("expected 100%%, got %f", session.CompletionPercentage())
	}
}

func TestCompletionIsMonotone(t *testing.T) {
	engine, user, db := setupEngine(t)
	defer db.Close()

	if _, err := engine.GetOrCreateSession(user.ID(), "album_1", 1); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	session := rate(t, engine, user.ID(), "track_1", "album_1", 9)
	if !session.IsCompleted() {
		t.Fatal("session should complete at 1/1")
	}
	completedAt := session.CompletedAt()
	if completedAt == nil {
		t.Fatal("expected completed_at to be set")
	}

	// recompute after completion must not flip the flag or move the timestamp
	session, err := engine.RecomputeProgress(user.ID(), "album_1")
	if err != nil {
		t.Fatalf("failed to recompute: %v", err)
	}
	if !session.IsCompleted() {
		t.Error("completed session must stay completed")
	}
	if session.CompletedAt() == nil || !session.CompletedAt().Equal(*completedAt) {
		t.Errorf("completed_at must not move: %v vs %v", session.CompletedAt(), completedAt)
	}

	session = rate(t, engine, user.ID(), "track_1", "album_1", 2)
	if !session.IsCompleted() {
		t.Error("re-rating must not un-complete the session")
	}
	if session.CompletedAt() == nil || !session.CompletedAt().Equal(*completedAt) {
		t.Errorf("completed_at must not move on re-rate: %v vs %v", session.CompletedAt(), completedAt)
	}
}

func TestCompletionPercentage(t *testing.T) {
	engine, user, db := setupEngine(t)
	defer db.Close()

	t.Run("ZeroTotalIsZero", func(t *testing.T) {
		session, err := engine.GetOrCreateSession(user.ID(), "album_zero", 0)
		if err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		if pct := engine.CompletionPercentage(session); pct != 0 {
			t.Errorf("expected 0%% for unknown total, got %f", pct)
		}
	})

	t.Run("HalfwayRounded", func(t *testing.T) {
		if _, err := engine.GetOrCreateSession(user.ID(), "album_half", 2); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		session := rate(t, engine, user.ID(), "track_h1", "album_half", 5)
		if pct := engine.CompletionPercentage(session); pct != 50.0 {
			t.Errorf("expected 50.0%%, got %f", pct)
		}
	})

	t.Run("OneDecimalPlace", func(t *testing.T) {
		if _, err := engine.GetOrCreateSession(user.ID(), "album_third", 3); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
		session := rate(t, engine, user.ID(), "track_t1", "album_third", 5)
		if pct := engine.CompletionPercentage(session); pct != 33.3 {
			t.Errorf("expected 33.3%%, got %f", pct)
		}
	})
}

func TestRatingBeforeSessionNeverCompletes(t *testing.T) {
	engine, user, db := setupEngine(t)
	defer db.Close()

	// rating lands before the album's track total is known
	session := rate(t, engine, user.ID(), "track_1", "album_1", 6)

	if session.TotalTracks() != 0 {
		t.Errorf("expected unknown total, got %d", session.TotalTracks())
	}
	if session.IsCompleted() {
		t.Error("session with unknown total must not complete")
	}
	if session.RatedTracks() != 1 {
		t.Errorf("expected 1 rated track, got %d", session.RatedTracks())
	}
}

func TestClearAlbum(t *testing.T) {
	engine, user, db := setupEngine(t)
	defer db.Close()

	if _, err := engine.GetOrCreateSession(user.ID(), "album_1", 5); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	rate(t, engine, user.ID(), "track_1", "album_1", 7)
	rate(t, engine, user.ID(), "track_2", "album_1", 4)

	removed, err := engine.ClearAlbum(user.ID(), "album_1")
	if err != nil {
		t.Fatalf("failed to clear album: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed ratings, got %d", removed)
	}

	if _, err := engine.AlbumRatings(user.ID(), "album_1"); err != nil {
		t.Fatalf("failed to list ratings: %v", err)
	}
	byTrack, _ := engine.AlbumRatings(user.ID(), "album_1")
	if len(byTrack) != 0 {
		t.Errorf("expected no ratings after clear, got %d", len(byTrack))
	}
}

func TestSessionsAndStats(t *testing.T) {
	engine, user, db := setupEngine(t)
	defer db.Close()

	if _, err := engine.GetOrCreateSession(user.ID(), "album_1", 1); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	rate(t, engine, user.ID(), "track_1", "album_1", 8)

	if _, err := engine.GetOrCreateSession(user.ID(), "album_2", 12); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	rate(t, engine, user.ID(), "track_2", "album_2", 4)

	all, err := engine.Sessions(user.ID(), false)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(all))
	}

	completed, err := engine.Sessions(user.ID(), true)
	if err != nil {
		t.Fatalf("failed to list completed sessions: %v", err)
	}
	if len(completed) != 1 {
		t.Errorf("expected 1 completed session, got %d", len(completed))
	}

	stats, err := engine.UserStats(user.ID())
	if err != nil {
		t.Fatalf("failed to compute stats: %v", err)
	}
	if stats.TotalSessions != 2 || stats.CompletedSessions != 1 {
		t.Errorf("unexpected session counts: %+v", stats)
	}
	if stats.TotalRatings != 2 {
		t.Errorf("expected 2 ratings, got %d", stats.TotalRatings)
	}
	if stats.OverallAverage == nil || *stats.OverallAverage != 6.0 {
		t.Errorf("expected overall average 6.0, got %v", stats.OverallAverage)
	}
}
