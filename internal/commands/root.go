// Package commands implements the focusflow command line.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/hiroki-koketsu/focusflow/internal/config"
	"github.com/hiroki-koketsu/focusflow/internal/telemetry"
	"github.com/urfave/cli/v3"
)

// NewRoot builds the focusflow command with every subcommand registered.
func NewRoot(flags *Flags, version string) *cli.Command {
	app := &cli.Command{
		Name:      "focusflow",
		Usage:     "Task manager and study coach for students",
		UsageText: "focusflow [global options] command [command options]",
		Description: `FocusFlow keeps a list of study tasks with due dates and priorities.

Run 'focusflow serve' to start the HTTP API with the study coach and chat.
The other commands work on the same store directly.`,
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("FOCUSFLOW_CONFIG"),
				Value:       DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "store",
				Usage:       "store driver (memory, sqlite, redis)",
				Sources:     cli.EnvVars("STORE_DRIVER"),
				Destination: &flags.StoreDriver,
			},
			&cli.StringFlag{
				Name:        "store-path",
				Usage:       "sqlite database file",
				Sources:     cli.EnvVars("STORE_PATH"),
				Destination: &flags.StorePath,
			},
			&cli.StringFlag{
				Name:        "redis-addr",
				Usage:       "redis address for the redis driver",
				Sources:     cli.EnvVars("REDIS_ADDR"),
				Destination: &flags.RedisAddr,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.applyOverrides(cfg)

			if err := cfg.Validate(); err != nil {
				return ctx, fmt.Errorf("invalid config: %w", err)
			}

			flags.Config = cfg
			errOut := c.Root().ErrWriter
			if errOut == nil {
				errOut = os.Stderr
			}
			flags.Logger = telemetry.NewLogger(errOut, cfg.Level())
			return ctx, nil
		},
	}

	app = NewServeCmd(flags).Register(app)
	app = NewLsCmd(flags).Register(app)
	app = NewAddCmd(flags).Register(app)
	app = NewToggleCmd(flags).Register(app)
	app = NewRmCmd(flags).Register(app)
	app = NewStatsCmd(flags).Register(app)

	return app
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, version string, args []string) int {
	app := NewRoot(&Flags{}, version)
	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}
