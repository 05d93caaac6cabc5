package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/reyya31/dbmigrate/internal/config"
	"github.com/reyya31/dbmigrate/internal/driver"
	"github.com/reyya31/dbmigrate/internal/exitcodes"
	"github.com/reyya31/dbmigrate/internal/logging"
	"github.com/reyya31/dbmigrate/internal/orchestrator"
	"github.com/reyya31/dbmigrate/internal/report"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "dbmigrate",
		Usage:   "Cross-engine SQL dataset migration with post-transfer validation",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Value: "info",
				Usage: "Log verbosity level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "output-json",
				Usage: "Write the migration report as JSON to stdout (logs go to stderr)",
			},
			&cli.StringFlag{
				Name:  "output-file",
				Usage: "Write the migration report as JSON to a file",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("verbosity"))
			if err != nil {
				return cli.Exit(err.Error(), exitcodes.ConfigError)
			}
			logging.SetLevel(level)

			if c.Bool("output-json") {
				logging.SetOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run a migration",
				Action: runMigration,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Plan only: introspect and type-map, no writes",
					},
				},
			},
			{
				Name:   "plan",
				Usage:  "Show per-column type plans without writing anything",
				Action: planMigration,
			},
			{
				Name:   "validate",
				Usage:  "Re-run validation against an already-migrated target",
				Action: validateMigration,
			},
			{
				Name:  "engines",
				Usage: "List supported database engines",
				Action: func(c *cli.Context) error {
					for _, name := range driver.Available() {
						fmt.Println(name)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Error("%v", err)
		os.Exit(exitcodes.FromError(err))
	}
}

// signalContext cancels on SIGINT/SIGTERM so long-running transfers stop
// issuing new batches promptly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitcodes.ConfigError)
	}
	return cfg, nil
}

func runMigration(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.Bool("dry-run") {
		cfg.Migration.DryRun = true
	}

	ctx, cancel := signalContext()
	defer cancel()

	o := orchestrator.New(cfg)
	o.ShowProgress = !c.Bool("output-json") && logging.GetLevel() >= logging.LevelInfo

	m, err := o.Run(ctx)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.FromError(err))
	}
	return emit(ctx, c, m)
}

func planMigration(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	m, err := orchestrator.New(cfg).Plan(ctx)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.FromError(err))
	}
	return emit(ctx, c, m)
}

func validateMigration(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	m, err := orchestrator.New(cfg).ValidateOnly(ctx)
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.FromError(err))
	}
	return emit(ctx, c, m)
}

// emit renders the report and maps its outcome to the process exit code. An
// interrupted run still emits its report so the failed tables stay visible.
func emit(ctx context.Context, c *cli.Context, m *report.Migration) error {
	if path := c.String("output-file"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return cli.Exit(err.Error(), exitcodes.TransferError)
		}
		defer f.Close()
		if err := m.WriteJSON(f); err != nil {
			return cli.Exit(err.Error(), exitcodes.TransferError)
		}
	}

	if c.Bool("output-json") {
		if err := m.WriteJSON(os.Stdout); err != nil {
			return cli.Exit(err.Error(), exitcodes.TransferError)
		}
	} else {
		m.Render()
	}

	if code := exitcodes.FromOutcome(ctx.Err(), m); code != exitcodes.Success {
		return cli.Exit("", code)
	}
	return nil
}
