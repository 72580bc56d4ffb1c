// Package runtime invokes the external container runtime. Each app is
// a compose project named after its app ID, assembled from the planned
// fragment files and the app's environment file.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/selfhostd/appctl/interfaces"
)

// CommandRunner abstracts process execution for the runtime adapter.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner executes commands on the local host, streaming output
// through so the operator sees the runtime's own progress reporting.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// DockerCompose drives `docker compose` for app projects. Runtime
// failures are propagated uninterpreted.
type DockerCompose struct {
	runner CommandRunner
	log    *slog.Logger
}

// NewDockerCompose creates a runtime adapter executing on the host.
func NewDockerCompose(log *slog.Logger) *DockerCompose {
	return &DockerCompose{runner: ExecRunner{}, log: log}
}

// WithRunner swaps the command runner, for tests.
func (d *DockerCompose) WithRunner(runner CommandRunner) *DockerCompose {
	return &DockerCompose{runner: runner, log: d.log}
}

// Pull fetches the images for every service in the project.
func (d *DockerCompose) Pull(ctx context.Context, project interfaces.ComposeProject) error {
	return d.run(ctx, project, "pull")
}

// Up starts the project's containers detached. With service names given
// only those services are started.
func (d *DockerCompose) Up(ctx context.Context, project interfaces.ComposeProject, services ...string) error {
	args := append([]string{"up", "--detach"}, services...)
	return d.run(ctx, project, args...)
}

// Down stops and removes the project's containers. With removeImages it
// also removes the images, for uninstall.
func (d *DockerCompose) Down(ctx context.Context, project interfaces.ComposeProject, removeImages bool) error {
	args := []string{"down", "--remove-orphans"}
	if removeImages {
		args = append(args, "--rmi", "all")
	}
	return d.run(ctx, project, args...)
}

// Run forwards args verbatim as a compose subcommand, the escape hatch
// for the `appctl compose` command.
func (d *DockerCompose) Run(ctx context.Context, project interfaces.ComposeProject, args ...string) error {
	return d.run(ctx, project, args...)
}

func (d *DockerCompose) run(ctx context.Context, project interfaces.ComposeProject, args ...string) error {
	full := []string{"compose", "--project-name", project.Name}
	if project.EnvFile != "" {
		full = append(full, "--env-file", project.EnvFile)
	}
	for _, f := range project.Files {
		full = append(full, "--file", f)
	}
	full = append(full, args...)

	d.log.Debug("invoking container runtime", "app", project.Name, "args", args)
	if err := d.runner.Run(ctx, "docker", full...); err != nil {
		return fmt.Errorf("docker compose %s failed for %s: %w", args[0], project.Name, err)
	}
	return nil
}
