// Package compose selects and orders the compose fragments for an app.
package compose

import (
	"log/slog"
	"os"

	"github.com/selfhostd/appctl/config"
	"github.com/selfhostd/appctl/interfaces"
	"github.com/selfhostd/appctl/manifest"
)

// Shared fragment file names under the configured fragment directory.
const (
	CommonFragment = "docker-compose.common.yml"
	ProxyFragment  = "docker-compose.proxy.yml"
	TorFragment    = "docker-compose.tor.yml"
)

// Planner builds the ordered fragment list for an app.
type Planner struct {
	cfg *config.Config
	log *slog.Logger
}

// NewPlanner creates a Planner over the configured fragment directory.
func NewPlanner(cfg *config.Config, log *slog.Logger) *Planner {
	return &Planner{cfg: cfg, log: log}
}

// Plan returns the fragment set for id, built fresh on every call.
//
// Emitted order is [proxy?, tor?, common, app]: the app's own file is
// last so it wins all conflicts, the baseline sits after the capability
// fragments so they cannot override it, and the capability fragments
// come first so the app's services can reference theirs.
func (p *Planner) Plan(id interfaces.AppID) ([]string, error) {
	appFile := p.cfg.AppComposeFile(id)

	hasProxy, err := manifest.DeclaresService(appFile, manifest.ProxyService)
	if err != nil {
		return nil, err
	}

	var files []string
	if hasProxy {
		files = append(files, p.cfg.FragmentPath(ProxyFragment))
	}
	if fileExists(p.cfg.TorrcFile(id)) {
		files = append(files, p.cfg.FragmentPath(TorFragment))
	}
	files = append(files, p.cfg.FragmentPath(CommonFragment), appFile)

	p.log.Debug("planned compose fragments", "app", id, "files", files)
	return files, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
