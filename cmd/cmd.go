// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration, database and migrations",
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: r.Setup,
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authenticate with Spotify using OAuth2",
				Flags: []cli.Flag{
					configFlag(),
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the authenticated user and token state",
				Action: r.AuthStatus,
			},
		},
	}
}

// albumsCommand handles library browsing operations
func albumsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "albums",
		Aliases: []string{"library"},
		Usage:   "Browse your saved albums",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List albums saved in your Spotify library",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of albums to show",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Save API response locally",
					},
				},
				Action: r.AlbumsList,
			},
			{
				Name:  "tracks",
				Usage: "List an album's tracks with your ratings",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "album-id",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.AlbumTracks,
			},
			{
				Name:  "search",
				Usage: "Search the catalog for albums and artists",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "query",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.AlbumsSearch,
			},
		},
	}
}

// rateCommand records a track rating
func rateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "rate",
		Usage: "Rate a track on a 1-10 scale",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "track",
				Usage:    "Track ID to rate",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "album",
				Usage:    "Album ID the track belongs to",
				Required: true,
			},
			&cli.IntFlag{
				Name:     "rating",
				Usage:    "Rating value between 1 and 10",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Rate,
	}
}

// sessionsCommand handles rating session inspection and exports
func sessionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Inspect album rating sessions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List your rating sessions",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "completed",
						Usage: "Only show completed sessions",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.SessionsList,
			},
			{
				Name:  "stats",
				Usage: "Summarize your rating activity",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SessionsStats,
			},
			{
				Name:  "clear",
				Usage: "Remove all ratings for an album and abandon its session",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "album-id",
					},
				},
				Action: r.SessionsClear,
			},
			{
				Name:  "export",
				Usage: "Export an album's ratings to CSV, Markdown or text",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "album-id",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Export format: csv, markdown or text",
						Value: "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path (base name for csv, directory for markdown, file for text)",
					},
				},
				Action: r.SessionsExport,
			},
		},
	}
}

// serveCommand runs the HTTP server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web server with browser login and the rating API",
		Flags: []cli.Flag{
			configFlag(),
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for interactive album rating.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch interactive TUI for rating albums",
		Action:  r.TUI,
	}
}
