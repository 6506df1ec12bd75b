package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mkbell/discme/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup initializes the configuration file, database and schema.
//
// Creates config.toml from the embedded example when missing, then opens the
// configured database and runs migrations. Safe to re-run.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if err := shared.CreateConfigFile(configPath); err != nil {
		if !errors.Is(err, shared.ErrInvalidConfig) {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.writePlain("✓ Config file already exists at %s\n", configPath)
	} else {
		r.writePlain("✓ Created %s — fill in your Spotify credentials\n", configPath)
	}

	if _, err := os.Stat(configPath); err == nil {
		config, err := shared.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		r.config = config
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.attachDatabase(db)

	r.logger.Info("database initialized", "path", r.config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)

	return nil
}
