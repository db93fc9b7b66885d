// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vgen/internal/feed"
)

// Flags keep parse state, so every command gets its own instance.
func jsonFlag() cli.Flag { return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"} }

func prettyFlag() cli.Flag {
	return &cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output", Value: true}
}

func limitFlag() cli.Flag {
	return &cli.IntFlag{Name: "limit", Usage: "Maximum number of videos", Value: feed.DefaultSyncLimit}
}

// setupCommand handles setup operations for the database and configuration file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize the feed cache and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   defaultConfigPath,
					},
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write a config.toml from the built-in template",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   defaultConfigPath,
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// authCommand handles sign-in state.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in through the browser",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: 2 * time.Minute,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Forget the saved token and the task session",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show who is signed in",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}

// generateCommand starts a generation and tracks it.
func generateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "generate",
		Aliases: []string{"gen"},
		Usage:   "Generate a video from a prompt",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "prompt"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "resolution", Usage: "480p or 720p"},
			&cli.StringFlag{Name: "ratio", Usage: "16:9, 9:16 or 1:1"},
			&cli.IntFlag{Name: "duration", Usage: "Length in seconds"},
			&cli.IntFlag{Name: "fps", Usage: "16 or 24"},
			&cli.BoolFlag{
				Name:  "detach",
				Usage: "Only create and track the task; check on it later with 'vgen task sync'",
			},
			jsonFlag(),
		},
		Action: r.Generate,
	}
}

// taskCommand handles the tracked task registry.
func taskCommand(r *Runner) *cli.Command {
	taskArg := []cli.Argument{&cli.StringArg{Name: "id"}}
	return &cli.Command{
		Name:    "task",
		Aliases: []string{"tasks"},
		Usage:   "Tracked generation tasks",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List tracked tasks",
				Flags:  []cli.Flag{jsonFlag(), prettyFlag()},
				Action: r.TaskList,
			},
			{
				Name:      "add",
				Usage:     "Track an existing task by id",
				Arguments: taskArg,
				Action:    r.TaskAdd,
			},
			{
				Name:      "refresh",
				Usage:     "Query one task's status",
				Arguments: taskArg,
				Action:    r.TaskRefresh,
			},
			{
				Name:   "sync",
				Usage:  "Sync every unfinished task with the gateway",
				Action: r.TaskSync,
			},
			{
				Name:      "remove",
				Aliases:   []string{"discard"},
				Usage:     "Stop tracking a task",
				Arguments: taskArg,
				Action:    r.TaskRemove,
			},
			{
				Name:      "preview",
				Usage:     "Open a finished task's video",
				Arguments: taskArg,
				Action:    r.TaskPreview,
			},
			{
				Name:      "use",
				Usage:     "Hand a finished task's result to the next publish",
				Arguments: taskArg,
				Action:    r.TaskUse,
			},
		},
	}
}

// publishCommand publishes an upload or a generated result to the feed.
func publishCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish a video to the feed",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Video title", Required: true},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Video description"},
			&cli.StringFlag{Name: "tags", Usage: "Comma or space separated tags"},
			&cli.StringFlag{Name: "video", Usage: "Local video file to upload"},
			&cli.StringFlag{Name: "cover", Usage: "Local cover image to upload"},
			&cli.StringFlag{Name: "task", Usage: "Publish a finished task's result"},
			jsonFlag(),
		},
		Action: r.Publish,
	}
}

// feedCommand handles the locally cached feed.
func feedCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Published videos",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List cached feed videos",
				Flags:  []cli.Flag{limitFlag(), jsonFlag(), prettyFlag()},
				Action: r.FeedList,
			},
			{
				Name:   "sync",
				Usage:  "Refresh the cache from the catalog",
				Flags:  []cli.Flag{limitFlag()},
				Action: r.FeedSync,
			},
			{
				Name:      "like",
				Usage:     "Toggle your like on a video",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id"}},
				Action:    r.FeedLike,
			},
			{
				Name:  "export",
				Usage: "Export the cached feed",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "csv, md, txt or json",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file or directory",
					},
					&cli.StringFlag{Name: "title", Usage: "Export title"},
					&cli.BoolFlag{Name: "cover", Usage: "Download the newest cover image (md only)"},
					limitFlag(),
				},
				Action: r.FeedExport,
			},
		},
	}
}

// storageCommand handles manual object storage cleanup.
func storageCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "storage",
		Usage: "Object storage maintenance",
		Commands: []*cli.Command{
			{
				Name:      "remove",
				Usage:     "Delete an uploaded object by key, e.g. one left behind by a failed publish",
				Arguments: []cli.Argument{&cli.StringArg{Name: "key"}},
				Action:    r.StorageRemove,
			},
		},
	}
}

// sessionCommand handles the persisted task session.
func sessionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Client session state",
		Commands: []*cli.Command{
			{
				Name:   "clear",
				Usage:  "Forget tracked tasks and any pending result",
				Action: r.SessionClear,
			},
		},
	}
}

// apiCommand handles direct backend calls for debugging.
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the backend",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the response body",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					prettyFlag(),
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// tuiCommand launches the task tray.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Interactive task tray",
		Action: r.TUI,
	}
}
