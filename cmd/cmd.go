// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func syncFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "dry-run",
			Aliases: []string{"n"},
			Usage:   "Match and plan without changing the target library or the cache",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the run summary as JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "Show live progress (logs go to the configured log file)",
		},
		&cli.StringFlag{
			Name:    "export",
			Aliases: []string{"o"},
			Usage:   "Also write the run to a .csv (match decisions) or .md (summary) file",
		},
	}
}

// syncCommand handles library synchronization
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Bring YouTube Music collections in line with Spotify",
		Commands: []*cli.Command{
			{
				Name:    "playlists",
				Aliases: []string{"playlist"},
				Usage:   "Sync owned playlists, or one playlist with --source",
				Flags: append(syncFlags(), &cli.StringFlag{
					Name:    "source",
					Aliases: []string{"s"},
					Usage:   "Spotify playlist ID to sync on its own",
				}),
				Action: r.Sync,
			},
			{
				Name:    "favorites",
				Aliases: []string{"liked"},
				Usage:   "Sync liked songs",
				Flags:   syncFlags(),
				Action:  r.Sync,
			},
			{
				Name:   "albums",
				Usage:  "Sync saved albums",
				Flags:  syncFlags(),
				Action: r.Sync,
			},
			{
				Name:   "artists",
				Usage:  "Sync followed artists",
				Flags:  syncFlags(),
				Action: r.Sync,
			},
			{
				Name:   "all",
				Usage:  "Sync every collection kind",
				Flags:  syncFlags(),
				Action: r.Sync,
			},
		},
	}
}

// cacheCommand inspects and edits the persisted match cache
func cacheCommand(r *Runner) *cli.Command {
	typeFlag := &cli.StringFlag{
		Name:    "type",
		Aliases: []string{"t"},
		Usage:   "Entity type: track, album or artist (default: all)",
	}
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and edit the match cache",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached matches",
				Flags: []cli.Flag{
					typeFlag,
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheList,
			},
			{
				Name:  "evict",
				Usage: "Forget the match and failure memo for one source entity",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "source-id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "type",
						Aliases:  []string{"t"},
						Usage:    "Entity type: track, album or artist",
						Required: true,
					},
				},
				Action: r.CacheEvict,
			},
			{
				Name:   "clear",
				Usage:  "Remove cached matches and failure memos",
				Flags:  []cli.Flag{typeFlag},
				Action: r.CacheClear,
			},
			{
				Name:  "failures",
				Usage: "List entities that will not be searched again until their retry time",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheFailures,
			},
		},
	}
}

// reportCommand shows the unmatched report from the last run
func reportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Unmatched item report",
		Commands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the report written by the last sync",
				Action: r.ReportShow,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// authCommand handles catalog logins
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:  "spotify",
				Usage: "Authorize libsync with Spotify and save the refresh token",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: defaultAuthTimeout,
					},
				},
				Action: r.AuthSpotify,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for picking a collection to sync.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Pick a collection and sync it interactively",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "Match and plan without changing anything",
			},
		},
		Action: r.TUI,
	}
}
