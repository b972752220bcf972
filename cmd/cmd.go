// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand initializes the config file and the catalog database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and initialize the track catalog",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write an example config file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Create the catalog database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles the device session
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the Tidal session",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize this device with the device-code flow",
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the session state and identity",
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Exchange the refresh token for a new access token",
				Action: r.AuthRefresh,
			},
			{
				Name:   "logout",
				Usage:  "Forget the persisted credential",
				Action: r.AuthLogout,
			},
		},
	}
}

// searchCommand queries the catalog
func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search Tidal",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of results per category",
				Value:   10,
			},
			&cli.StringFlag{
				Name:    "types",
				Aliases: []string{"t"},
				Usage:   "Comma separated categories: tracks, albums, artists, playlists, videos",
				Value:   "tracks",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Search,
	}
}

// fetchCommand resolves tracks into the audio cache
func fetchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a track into the cache and print its path",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "id",
				Usage: "Tidal track id (repeatable)",
			},
			&cli.StringFlag{
				Name:    "from",
				Aliases: []string{"f"},
				Usage:   "File with one query per line",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent downloads for multiple requests",
				Value:   3,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Fetch,
	}
}

// tuiCommand launches the interactive search-and-fetch picker
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Pick a track interactively and fetch it into the cache",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of matches to list",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where logs go while the picker owns the terminal",
				Value: "./tmp/tdx-tui.log",
			},
		},
		Action: r.TUI,
	}
}

// cacheCommand inspects and maintains the audio cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and maintain the audio cache",
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show cache usage",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheStatus,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List cataloged tracks",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: text, csv, markdown, json",
						Value: "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the listing to a file instead of stdout",
					},
					&cli.StringFlag{
						Name:  "artist",
						Usage: "Only tracks by this artist",
					},
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Only tracks whose title or artist contains this text",
					},
				},
				Action: r.CacheList,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove one track from the cache",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.CacheRemove,
			},
			{
				Name:   "clear",
				Usage:  "Remove every cached track",
				Action: r.CacheClear,
			},
			{
				Name:   "prune",
				Usage:  "Drop catalog rows whose audio was evicted",
				Action: r.CachePrune,
			},
		},
	}
}

// apiCommand exposes raw authenticated requests for debugging
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct API access",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "GET a path relative to the API url",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
		},
	}
}
