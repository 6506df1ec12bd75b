package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mkbell/discme/internal/auth"
	"github.com/mkbell/discme/internal/models"
	"github.com/mkbell/discme/internal/ratings"
	"github.com/mkbell/discme/internal/repositories"
	"github.com/mkbell/discme/internal/services"
	"github.com/mkbell/discme/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config   *shared.Config
	catalog  services.Catalog
	logger   *log.Logger
	output   io.Writer
	db       *sql.DB
	users    *repositories.UserRepository
	ratings  *repositories.RatingRepository
	sessions *repositories.SessionRepository
	albums   *repositories.AlbumRepository
	manager  *auth.Manager
	engine   *ratings.Engine
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config  *shared.Config
	Catalog services.Catalog
	Logger  *log.Logger
	Output  io.Writer
	DB      *sql.DB
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	r := &Runner{
		config:  opts.Config,
		catalog: opts.Catalog,
		logger:  opts.Logger,
		output:  opts.Output,
	}

	if opts.DB != nil {
		r.attachDatabase(opts.DB)
	}

	return r
}

// SetLogger replaces the runner's logger, used by the TUI to redirect logs to a file.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// attachDatabase wires the repositories, auth manager and rating engine over an open database.
func (r *Runner) attachDatabase(db *sql.DB) {
	r.db = db
	r.users = repositories.NewUserRepository(db)
	r.ratings = repositories.NewRatingRepository(db)
	r.sessions = repositories.NewSessionRepository(db)
	r.albums = repositories.NewAlbumRepository(db)
	r.engine = ratings.NewEngine(r.ratings, r.sessions, r.logger)

	if r.catalog != nil {
		ttl := time.Duration(r.config.Server.SessionTTL) * time.Minute
		r.manager = auth.NewManager(r.users, r.catalog, r.config.Server.SessionSecret, ttl, r.logger)
	}
}

// openDatabase lazily opens the configured database and wires the repository stack.
//
// Commands that touch persisted state call this first; `discme setup` must
// have run once so the schema exists.
func (r *Runner) openDatabase() error {
	if r.db != nil {
		return nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if r.config.Database.MaxOpenConns > 0 || r.config.Database.MaxIdleConns > 0 {
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	}

	r.attachDatabase(db)
	return nil
}

// requireCatalog ensures the Spotify catalog client was initialized from credentials.
func (r *Runner) requireCatalog() error {
	if r.catalog == nil {
		return fmt.Errorf("%w: Spotify credentials not configured, run `discme setup` and fill in config.toml", shared.ErrServiceUnavailable)
	}
	return nil
}

// currentUser loads the identity recorded by `discme auth login` and refreshes
// its access token if it has expired.
func (r *Runner) currentUser(ctx context.Context) (*models.User, error) {
	if err := r.openDatabase(); err != nil {
		return nil, err
	}

	if r.config.Auth.UserID == "" {
		return nil, fmt.Errorf("%w: run `discme auth login` first", shared.ErrNotAuthenticated)
	}

	user, err := r.users.Get(r.config.Auth.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: run `discme auth login` again", shared.ErrNotAuthenticated)
	}

	if r.manager == nil {
		return nil, fmt.Errorf("%w: Spotify credentials not configured", shared.ErrServiceUnavailable)
	}

	user, err = r.manager.RefreshIfNeeded(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	return user, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, albumsCommand, rateCommand, sessionsCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
