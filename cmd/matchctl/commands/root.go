package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/matchctl/internal/app"
	"github.com/florianilch/matchctl/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand().Run(ctx, args)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "matchctl",
		Usage: "Command-line client for the match platform API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "log exporter (none|stdout|otlp-http|otlp-grpc)",
				Value: string(app.DefaultConfigLogExporter),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "platform API base URL",
			},
			&cli.StringFlag{
				Name:  "identity--base-url",
				Usage: "identity provider base URL (defaults to the API base URL)",
			},
			&cli.StringFlag{
				Name:  "storage--type",
				Usage: "session storage (file|keyring|env|memory)",
				Value: string(app.DefaultConfigStorage),
			},
			&cli.StringFlag{
				Name:  "storage--dir",
				Usage: "directory for file storage",
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			whoamiCommand(),
			statusCommand(),
			tokenCommand(),
			callCommand(),
			serveCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a local gateway that forwards requests to the API with the session credentials",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
		},
		Action: withApp(serveAction),
	}
}

func serveAction(ctx context.Context, _ *cli.Command, application *app.App) error {
	slog.InfoContext(ctx, "starting")

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}

type appAction func(ctx context.Context, cmd *cli.Command, application *app.App) error

// withApp loads configuration, sets up logging and builds the App before running action.
func withApp(action appAction) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		errOut := stderr(cmd)

		// Set up observability before creating app
		shutdown, err := observability.Instrument(ctx, observability.Options{
			Level:    cfg.LogLevel,
			Format:   string(cfg.LogFormat),
			Exporter: cfg.LogExporter,
			Writer:   errOut,
		})
		if err != nil {
			return fmt.Errorf("failed to set up observability layer: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				_, _ = fmt.Fprintln(errOut, "flushing logs:", err)
			}
		}()

		application, err := app.New(cfg, app.WithSessionEndHandler(func(context.Context, error) {
			_, _ = fmt.Fprintln(errOut, "Your session has expired. Run `matchctl login` to sign in again.")
		}))
		if err != nil {
			return fmt.Errorf("failed to create app: %w", err)
		}

		return action(ctx, cmd, application)
	}
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}

func stdin(cmd *cli.Command) io.Reader {
	if r := cmd.Root().Reader; r != nil {
		return r
	}
	return os.Stdin
}
