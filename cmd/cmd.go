// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// syncCommand runs the pipeline once.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Export recent virtual rides from Strava and upload them to Garmin Connect",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "days",
				Aliases: []string{"d"},
				Usage:   "Look back this many days (default: sync.window_days)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Export files but do not upload or record them",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Process at most this many pending activities (default: sync.limit)",
			},
			&cli.BoolFlag{
				Name:  "headless",
				Usage: "Run the browser without a window (default: browser.headless)",
			},
			&cli.BoolFlag{
				Name:  "headful",
				Usage: "Show the browser window",
			},
		},
		Action: r.Sync,
	}
}

// activitiesCommand lists candidates without exporting anything.
func activitiesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "activities",
		Aliases: []string{"ls"},
		Usage:   "List the activities a sync would consider",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "days",
				Aliases: []string{"d"},
				Usage:   "Look back this many days (default: sync.window_days)",
			},
			&cli.BoolFlag{
				Name:  "pending",
				Usage: "Hide activities already in the ledger",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Activities,
	}
}

// watchCommand uploads files dropped into a directory.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Upload .fit, .tcx and .gpx files as they appear in a directory",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "dir"},
		},
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "settle",
				Usage: "Wait until a file has not changed for this long",
				Value: 2 * time.Second,
			},
			&cli.BoolFlag{
				Name:  "remove",
				Usage: "Delete files after Garmin accepts them",
			},
			&cli.BoolFlag{
				Name:  "existing",
				Usage: "Also upload files already in the directory",
			},
		},
		Action: r.Watch,
	}
}

// ledgerCommand inspects and edits the sync ledger.
func ledgerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Inspect the record of migrated activities",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List migrated activities, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of records (0 for all)",
						Value: 50,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.LedgerList,
			},
			{
				Name:  "check",
				Usage: "Report whether an activity has been migrated",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.LedgerCheck,
			},
			{
				Name:  "mark",
				Usage: "Record an activity as migrated, e.g. after a manual upload",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.LedgerMark,
			},
			{
				Name:  "export",
				Usage: "Export the ledger to a file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: csv, md, txt or json",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: ridesync_ledger.<format>)",
					},
				},
				Action: r.LedgerExport,
			},
		},
	}
}

// historyCommand shows past runs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"runs"},
		Usage:   "Show recent sync runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:    "tui",
				Aliases: []string{"i"},
				Usage:   "Browse runs and the ledger interactively",
			},
		},
		Action: r.History,
	}
}

// authCommand handles authentication with both services.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:  "strava",
				Usage: "Authorize API access to Strava using OAuth2",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: 2 * time.Minute,
					},
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening it",
					},
				},
				Action: r.AuthStrava,
			},
			{
				Name:   "status",
				Usage:  "Check the stored Strava token and show the athlete",
				Action: r.AuthStatus,
			},
			{
				Name:  "garmin",
				Usage: "Store Garmin Connect session headers from a browser cURL command",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command from browser DevTools (Copy as cURL)",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to a file containing the cURL command",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Where to save the headers (default: credentials.garmin.headers_path)",
					},
				},
				Action: r.AuthGarmin,
			},
		},
	}
}

// configCommand manages the configuration file.
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write an example config to the --config path",
				Action: r.ConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Check the configuration for a sync run",
				Action: r.ConfigValidate,
			},
		},
	}
}

// dbCommand manages the SQLite schema.
func dbCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "db",
		Aliases: []string{"database"},
		Usage:   "Database migrations",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending migrations",
				Action: r.DBMigrate,
			},
			{
				Name:   "status",
				Usage:  "List applied migrations",
				Action: r.DBStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the latest migration",
				Action: r.DBRollback,
			},
		},
	}
}

// apiCommand makes raw Strava API calls for debugging.
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct Strava API calls",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Authenticated GET against the Strava API, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.APIGet,
			},
		},
	}
}
