package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/selfhostd/appctl/compose"
	"github.com/selfhostd/appctl/config"
	"github.com/selfhostd/appctl/envfile"
	"github.com/selfhostd/appctl/interfaces"
	"github.com/selfhostd/appctl/templates"
	"github.com/selfhostd/appctl/torsync"
)

// Options tunes a lifecycle command.
type Options struct {
	// SkipStart leaves the app stopped after install or update.
	SkipStart bool

	// SkipStop skips the stop phase of update.
	SkipStop bool
}

// Controller sequences lifecycle commands for apps.
type Controller struct {
	cfg     *config.Config
	reg     interfaces.Registry
	env     *envfile.Composer
	planner *compose.Planner
	rt      interfaces.ComposeRuntime
	sync    *torsync.Synchronizer
	log     *slog.Logger
}

// New wires a Controller from its collaborators.
func New(cfg *config.Config, reg interfaces.Registry, env *envfile.Composer, planner *compose.Planner, rt interfaces.ComposeRuntime, sync *torsync.Synchronizer, log *slog.Logger) *Controller {
	return &Controller{cfg: cfg, reg: reg, env: env, planner: planner, rt: rt, sync: sync, log: log}
}

// Install copies the app from the repository, prepares its environment
// and templates, pulls its images, optionally starts it, and registers
// it. Registration is last: a failure anywhere upstream never marks the
// app installed.
func (c *Controller) Install(ctx context.Context, id interfaces.AppID, opts Options) error {
	srcDir := c.cfg.RepoAppDir(id)
	if !dirExists(srcDir) {
		return fmt.Errorf("%s: %w", id, interfaces.ErrNotInRepo)
	}

	dataDir := c.cfg.AppDataDir(id)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create app data directory: %w", err)
	}
	if err := copyTree(srcDir, dataDir); err != nil {
		return fmt.Errorf("failed to copy app from repo: %w", err)
	}
	if err := c.ensureTorTemplate(id); err != nil {
		return err
	}

	project, _, err := c.prepare(id)
	if err != nil {
		return err
	}

	if err := c.rt.Pull(ctx, project); err != nil {
		return err
	}
	if !opts.SkipStart {
		if err := c.start(ctx, id); err != nil {
			return err
		}
	}

	if err := c.reg.Add(ctx, id); err != nil {
		return err
	}
	c.log.Info("app installed", "app", id)
	return nil
}

// Uninstall tears down the app's containers and images, removes its
// data directory, and deregisters it last.
func (c *Controller) Uninstall(ctx context.Context, id interfaces.AppID) error {
	if err := c.requireInstalled(id); err != nil {
		return err
	}

	if err := c.rt.Down(ctx, c.bestEffortProject(id), true); err != nil {
		return err
	}
	if err := os.RemoveAll(c.cfg.AppDataDir(id)); err != nil {
		return fmt.Errorf("failed to remove app data directory: %w", err)
	}
	if err := c.reg.Remove(ctx, id); err != nil {
		return err
	}
	c.log.Info("app uninstalled", "app", id)
	return nil
}

// Start brings a registered app's containers up, waiting (best-effort)
// for its hidden service address first.
func (c *Controller) Start(ctx context.Context, id interfaces.AppID) error {
	if err := c.requireInstalled(id); err != nil {
		return err
	}
	return c.start(ctx, id)
}

// start runs the start sequence without the registration check, for use
// inside install and update where the app is not yet (re)registered.
func (c *Controller) start(ctx context.Context, id interfaces.AppID) error {
	project, _, err := c.prepare(id)
	if err != nil {
		return err
	}

	state, err := c.sync.Wait(ctx, id, project)
	if err != nil {
		return err
	}
	c.log.Debug("hidden service wait finished", "app", id, "state", state.String())

	return c.rt.Up(ctx, project)
}

// Stop tears the app's containers down. It requires no registration and
// tolerates an already-stopped or half-removed app.
func (c *Controller) Stop(ctx context.Context, id interfaces.AppID) error {
	return c.rt.Down(ctx, c.bestEffortProject(id), false)
}

// Restart is stop then start as two independent sub-invocations.
func (c *Controller) Restart(ctx context.Context, id interfaces.AppID) error {
	if err := c.Stop(ctx, id); err != nil {
		return err
	}
	return c.Start(ctx, id)
}

// Update refreshes the app from the repository. The whitelist copy
// deliberately excludes the manifest; the manifest is copied in a
// deferred final pass on every exit path, so an external observer
// watching it never sees the update as complete before the app is
// runnable again.
func (c *Controller) Update(ctx context.Context, id interfaces.AppID, opts Options) (err error) {
	if err := c.requireInstalled(id); err != nil {
		return err
	}
	srcDir := c.cfg.RepoAppDir(id)
	if !dirExists(srcDir) {
		return fmt.Errorf("%s: %w", id, interfaces.ErrNotInRepo)
	}

	if !opts.SkipStop {
		if err := c.Stop(ctx, id); err != nil {
			return err
		}
	}

	defer func() {
		if copyErr := c.copyManifest(id); copyErr != nil {
			c.log.Error("final manifest copy failed", "app", id, "err", copyErr)
			if err == nil {
				err = copyErr
			}
		}
	}()

	if err := copyWhitelist(srcDir, c.cfg.AppDataDir(id)); err != nil {
		return fmt.Errorf("failed to copy app update from repo: %w", err)
	}
	if err := c.ensureTorTemplate(id); err != nil {
		return err
	}

	project, _, err := c.prepare(id)
	if err != nil {
		return err
	}
	if err := c.rt.Pull(ctx, project); err != nil {
		return err
	}
	if !opts.SkipStart {
		if err := c.start(ctx, id); err != nil {
			return err
		}
	}
	c.log.Info("app updated", "app", id)
	return nil
}

// Compose forwards args to the container runtime against the app's
// planned fragments and environment, the generic escape hatch.
func (c *Controller) Compose(ctx context.Context, id interfaces.AppID, args ...string) error {
	project, _, err := c.prepare(id)
	if err != nil {
		return err
	}
	return c.rt.Run(ctx, project, args...)
}

// Installed returns the registered app IDs.
func (c *Controller) Installed() ([]interfaces.AppID, error) {
	return c.reg.List()
}

// prepare composes the environment, renders templates, writes the env
// file, and plans the fragment set for id.
func (c *Controller) prepare(id interfaces.AppID) (interfaces.ComposeProject, map[string]string, error) {
	env, err := c.env.Compose(id)
	if err != nil {
		return interfaces.ComposeProject{}, nil, err
	}
	if err := templates.Render(c.cfg.AppDataDir(id), env, c.log); err != nil {
		return interfaces.ComposeProject{}, nil, err
	}
	envFile, err := c.env.WriteEnvFile(id, env)
	if err != nil {
		return interfaces.ComposeProject{}, nil, err
	}
	files, err := c.planner.Plan(id)
	if err != nil {
		return interfaces.ComposeProject{}, nil, err
	}
	return interfaces.ComposeProject{Name: id.String(), Files: files, EnvFile: envFile}, env, nil
}

// bestEffortProject builds a project for teardown. Missing files reduce
// the project to its bare name, which the runtime can still tear down
// by project label.
func (c *Controller) bestEffortProject(id interfaces.AppID) interfaces.ComposeProject {
	project := interfaces.ComposeProject{Name: id.String()}
	files, err := c.planner.Plan(id)
	if err != nil {
		c.log.Debug("could not plan fragments for teardown", "app", id, "err", err)
		return project
	}
	project.Files = files
	if fileExists(c.cfg.AppEnvFile(id)) {
		project.EnvFile = c.cfg.AppEnvFile(id)
	}
	return project
}

func (c *Controller) requireInstalled(id interfaces.AppID) error {
	installed, err := c.reg.List()
	if err != nil {
		return err
	}
	for _, got := range installed {
		if got == id {
			return nil
		}
	}
	return fmt.Errorf("%s: %w", id, interfaces.ErrNotInstalled)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
