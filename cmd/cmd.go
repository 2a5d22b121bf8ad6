// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand creates the config file and database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file, initialize the database and run migrations",
		Action: r.Setup,
		Commands: []*cli.Command{
			{
				Name:  "catalog",
				Usage: "Import the tracker session cookie from a browser \"Copy as cURL\" command",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command copied from the browser",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "File containing the cURL command",
					},
				},
				Action: r.SetupCatalog,
			},
		},
	}
}

// configCommand inspects the loaded configuration
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect configuration",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the configuration with secrets redacted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON instead of TOML",
					},
				},
				Action: r.ConfigShow,
			},
		},
	}
}

// spotifyCommand handles Spotify operations
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify playlist operations",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authenticate with Spotify using OAuth2",
				Action: r.SpotifyAuth,
			},
			{
				Name:  "playlists",
				Usage: "List your Spotify playlists",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SpotifyPlaylists,
			},
			{
				Name:  "tracks",
				Usage: "Print the tracks of a playlist as a track list",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the track list to a file",
					},
				},
				Action: r.SpotifyTracks,
			},
		},
	}
}

// libraryCommand manages the local library
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Local library operations",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Read the tags of audio files under a directory into the library",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "dir"},
				},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Number of files read at once",
						Value: 8,
					},
				},
				Action: r.LibraryImport,
			},
			{
				Name:  "match",
				Usage: "Match a playlist against the library without searching the tracker",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "restrict",
						Usage: "Require albums to match",
					},
				},
				Action: r.LibraryMatch,
			},
		},
	}
}

// catalogCommand runs single tracker operations
func catalogCommand(r *Runner) *cli.Command {
	trackFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "artist",
			Usage: "Artist name",
		},
		&cli.StringFlag{
			Name:  "album",
			Usage: "Album name",
		},
		&cli.StringFlag{
			Name:  "title",
			Usage: "Track title",
		},
	}

	return &cli.Command{
		Name:    "catalog",
		Aliases: []string{"cat"},
		Usage:   "Tracker operations",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authenticate and print the user",
				Action: r.CatalogLogin,
			},
			{
				Name:  "search",
				Usage: "Print the raw release candidates of a browse query",
				Flags: append(trackFlags,
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				),
				Action: r.CatalogSearch,
			},
			{
				Name:  "resolve",
				Usage: "Resolve one track and print its phase and artifact",
				Flags: append(trackFlags,
					&cli.StringFlag{
						Name:  "length",
						Usage: "Track length as seconds or m:ss",
					},
					&cli.BoolFlag{
						Name:  "restrict",
						Usage: "Require albums to match",
					},
				),
				Action: r.CatalogResolve,
			},
		},
	}
}

// resolveCommand runs the full playlist pipeline
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve a playlist file or Spotify playlist and download what is missing",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "playlist"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the download review",
			},
			&cli.BoolFlag{
				Name:  "restrict",
				Usage: "Require albums to match",
			},
			&cli.BoolFlag{
				Name:  "no-download",
				Usage: "Resolve and record the batch without downloading",
			},
		},
		Action: r.Resolve,
	}
}

// historyCommand lists recorded batches
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recent resolution batches",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of batches",
				Value: 20,
			},
		},
		Action: r.History,
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show one batch by id or unique id prefix",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "Output CSV",
					},
				},
				Action: r.HistoryShow,
			},
		},
	}
}
