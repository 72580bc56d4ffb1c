// Package interfaces defines the core interfaces and types for the app
// lifecycle orchestrator. It provides the contract between different
// components without implementation details.
package interfaces

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// AppID identifies an installable app. It doubles as the app's directory
// name in both the app repository and the data root, and as the compose
// project name handed to the container runtime.
type AppID string

var appIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// NewAppID validates a raw identifier and returns it as an AppID.
// Valid IDs are lowercase alphanumeric with interior dashes, matching
// what the app repository and the container runtime accept as names.
func NewAppID(raw string) (AppID, error) {
	if !appIDPattern.MatchString(raw) {
		return "", fmt.Errorf("invalid app id %q: must be lowercase alphanumeric with dashes", raw)
	}
	return AppID(raw), nil
}

// String returns the app ID as a plain string.
func (id AppID) String() string {
	return string(id)
}

// InstalledTarget is the literal app argument that fans a command out to
// every currently registered app.
const InstalledTarget = "installed"

// ComposeProject is the handle passed to the container runtime: a project
// name, the ordered fragment files, and the environment file consumed as
// process environment by the runtime.
type ComposeProject struct {
	Name    string
	Files   []string
	EnvFile string
}

// Registry is the durable set of installed app IDs. List never fails on a
// missing or malformed backing document; mutations serialize on an
// advisory lock and are atomic with respect to concurrent readers.
type Registry interface {
	List() ([]AppID, error)
	Add(ctx context.Context, id AppID) error
	Remove(ctx context.Context, id AppID) error
}

// ComposeRuntime abstracts the external container runtime. Failures are
// propagated verbatim; the orchestrator never interprets runtime exit
// status beyond success or failure.
type ComposeRuntime interface {
	Pull(ctx context.Context, project ComposeProject) error
	Up(ctx context.Context, project ComposeProject, services ...string) error
	Down(ctx context.Context, project ComposeProject, removeImages bool) error
	Run(ctx context.Context, project ComposeProject, args ...string) error
}

// SecretDeriver derives a stable hex secret for an identifier string.
type SecretDeriver interface {
	Derive(identifier string) (string, error)
}

// ErrNotInRepo reports an app ID with no entry in the app repository.
var ErrNotInRepo = errors.New("not found in app repo")

// ErrNotInstalled reports an app ID missing from the registry.
var ErrNotInstalled = errors.New("app not installed")

// ErrSyncTimeout reports that the hidden service address did not appear
// within the wait budget. It is advisory: callers log it and continue.
var ErrSyncTimeout = errors.New("hidden service address did not appear in time")
