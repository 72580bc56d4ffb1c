// Command appctl manages the lifecycle of multi-container apps on a
// single host: install, update, uninstall, start, stop, and the generic
// compose escape hatch. The literal app argument "installed" fans a
// command out to every registered app concurrently.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/selfhostd/appctl/cmd/flags"
	"github.com/selfhostd/appctl/compose"
	"github.com/selfhostd/appctl/config"
	"github.com/selfhostd/appctl/envfile"
	"github.com/selfhostd/appctl/interfaces"
	"github.com/selfhostd/appctl/lifecycle"
	"github.com/selfhostd/appctl/registry"
	"github.com/selfhostd/appctl/runtime"
	"github.com/selfhostd/appctl/secrets"
	"github.com/selfhostd/appctl/torsync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "appctl",
		Usage: "manage app lifecycles on this host",
		Flags: append([]cli.Flag{flags.ConfigFlag}, flags.LogFlags...),
		Commands: []*cli.Command{
			{
				Name:      "install",
				Usage:     "install an app from the app repo",
				ArgsUsage: "<app>",
				Flags:     []cli.Flag{flags.SkipStartFlag},
				Action: func(cCtx *cli.Context) error {
					c, err := setup(cCtx)
					if err != nil {
						return err
					}
					opts := lifecycle.Options{SkipStart: cCtx.Bool(flags.SkipStartFlag.Name)}
					return forTarget(cCtx, c, func(ctx context.Context, id interfaces.AppID) error {
						return c.Install(ctx, id, opts)
					})
				},
			},
			{
				Name:      "uninstall",
				Usage:     "remove an app and its data",
				ArgsUsage: "<app>",
				Action: func(cCtx *cli.Context) error {
					c, err := setup(cCtx)
					if err != nil {
						return err
					}
					return forTarget(cCtx, c, c.Uninstall)
				},
			},
			{
				Name:      "start",
				Usage:     "start an installed app",
				ArgsUsage: "<app>",
				Action: func(cCtx *cli.Context) error {
					c, err := setup(cCtx)
					if err != nil {
						return err
					}
					return forTarget(cCtx, c, c.Start)
				},
			},
			{
				Name:      "stop",
				Usage:     "stop an app (idempotent)",
				ArgsUsage: "<app>",
				Action: func(cCtx *cli.Context) error {
					c, err := setup(cCtx)
					if err != nil {
						return err
					}
					return forTarget(cCtx, c, c.Stop)
				},
			},
			{
				Name:      "restart",
				Usage:     "stop then start an app",
				ArgsUsage: "<app>",
				Action: func(cCtx *cli.Context) error {
					c, err := setup(cCtx)
					if err != nil {
						return err
					}
					return forTarget(cCtx, c, c.Restart)
				},
			},
			{
				Name:      "update",
				Usage:     "update an installed app from the app repo",
				ArgsUsage: "<app>",
				Flags:     []cli.Flag{flags.SkipStartFlag, flags.SkipStopFlag},
				Action: func(cCtx *cli.Context) error {
					c, err := setup(cCtx)
					if err != nil {
						return err
					}
					opts := lifecycle.Options{
						SkipStart: cCtx.Bool(flags.SkipStartFlag.Name),
						SkipStop:  cCtx.Bool(flags.SkipStopFlag.Name),
					}
					return forTarget(cCtx, c, func(ctx context.Context, id interfaces.AppID) error {
						return c.Update(ctx, id, opts)
					})
				},
			},
			{
				Name:      "compose",
				Usage:     "run a raw compose subcommand against an app",
				ArgsUsage: "<app> [args...]",
				Action: func(cCtx *cli.Context) error {
					c, err := setup(cCtx)
					if err != nil {
						return err
					}
					id, err := targetArg(cCtx)
					if err != nil {
						return err
					}
					return c.Compose(cCtx.Context, id, cCtx.Args().Tail()...)
				},
			},
			{
				Name:  "ls-installed",
				Usage: "list installed apps",
				Action: func(cCtx *cli.Context) error {
					c, err := setup(cCtx)
					if err != nil {
						return err
					}
					ids, err := c.Installed()
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Println(id)
					}
					return nil
				},
			},
		},
		CommandNotFound: func(cCtx *cli.Context, command string) {
			fmt.Fprintf(cCtx.App.ErrWriter, "unknown command: %s\n", command)
			cli.ShowAppHelp(cCtx)
			os.Exit(1)
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "appctl: %v\n", err)
		os.Exit(1)
	}
}

// setup wires the controller from the CLI context.
func setup(cCtx *cli.Context) (*lifecycle.Controller, error) {
	logger := flags.SetupLogger(cCtx)
	cfg, err := config.Load(cCtx.String(flags.ConfigFlag.Name))
	if err != nil {
		return nil, err
	}

	reg := registry.NewStore(cfg, logger)
	deriver := secrets.NewDeriver(cfg)
	composer := envfile.NewComposer(cfg, reg, deriver, logger)
	planner := compose.NewPlanner(cfg, logger)
	rt := runtime.NewDockerCompose(logger)
	syncer := torsync.New(cfg, rt, logger)

	return lifecycle.New(cfg, reg, composer, planner, rt, syncer, logger), nil
}

// targetArg resolves the single app argument of a command.
func targetArg(cCtx *cli.Context) (interfaces.AppID, error) {
	raw := cCtx.Args().First()
	if raw == "" {
		return "", errors.New("missing app argument")
	}
	return interfaces.NewAppID(raw)
}

// forTarget runs fn for the addressed app, or fans it out to every
// installed app when the argument is the literal "installed" target.
// Fan-out is best-effort: per-app failures are logged, the aggregate
// still exits zero.
func forTarget(cCtx *cli.Context, c *lifecycle.Controller, fn func(ctx context.Context, id interfaces.AppID) error) error {
	raw := cCtx.Args().First()
	if raw == "" {
		return errors.New("missing app argument")
	}
	if raw == interfaces.InstalledTarget {
		_, err := c.ForEachInstalled(cCtx.Context, fn)
		return err
	}
	id, err := interfaces.NewAppID(raw)
	if err != nil {
		return err
	}
	return fn(cCtx.Context, id)
}
