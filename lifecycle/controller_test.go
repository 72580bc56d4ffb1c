package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfhostd/appctl/compose"
	"github.com/selfhostd/appctl/config"
	"github.com/selfhostd/appctl/envfile"
	"github.com/selfhostd/appctl/interfaces"
	"github.com/selfhostd/appctl/registry"
	"github.com/selfhostd/appctl/secrets"
	"github.com/selfhostd/appctl/torsync"
)

type call struct {
	method       string
	services     []string
	removeImages bool
	files        []string
}

type fakeRuntime struct {
	mu      sync.Mutex
	calls   []call
	pullErr error
	upErr   error
	downErr error
}

func (f *fakeRuntime) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeRuntime) Pull(ctx context.Context, project interfaces.ComposeProject) error {
	f.record(call{method: "pull", files: project.Files})
	return f.pullErr
}

func (f *fakeRuntime) Up(ctx context.Context, project interfaces.ComposeProject, services ...string) error {
	f.record(call{method: "up", services: services, files: project.Files})
	return f.upErr
}

func (f *fakeRuntime) Down(ctx context.Context, project interfaces.ComposeProject, removeImages bool) error {
	f.record(call{method: "down", removeImages: removeImages, files: project.Files})
	return f.downErr
}

func (f *fakeRuntime) Run(ctx context.Context, project interfaces.ComposeProject, args ...string) error {
	f.record(call{method: "run"})
	return nil
}

func (f *fakeRuntime) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.method
	}
	return out
}

func (f *fakeRuntime) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

type harness struct {
	cfg  *config.Config
	ctrl *Controller
	rt   *fakeRuntime
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.DataRoot = filepath.Join(root, "data")
	cfg.AppRepoDir = filepath.Join(root, "repo")
	cfg.FragmentDir = filepath.Join(root, "fragments")
	cfg.SeedFile = filepath.Join(root, "seed")
	cfg.SeedFallbackFile = ""
	cfg.TorDataDir = filepath.Join(root, "tor")
	cfg.HiddenPollMS = 1
	cfg.HiddenAttempts = 1
	require.NoError(t, os.MkdirAll(cfg.DataRoot, 0o755))
	require.NoError(t, os.MkdirAll(cfg.AppRepoDir, 0o755))
	require.NoError(t, os.WriteFile(cfg.SeedFile, []byte("test-root-seed"), 0o600))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.NewStore(cfg, log)
	composer := envfile.NewComposer(cfg, reg, secrets.NewDeriver(cfg), log)
	planner := compose.NewPlanner(cfg, log)
	rt := &fakeRuntime{}
	syncer := torsync.New(cfg, rt, log)

	return &harness{
		cfg:  cfg,
		ctrl: New(cfg, reg, composer, planner, rt, syncer, log),
		rt:   rt,
	}
}

const repoCompose = `
services:
  web:
    image: gitea/gitea:${APP_VERSION}
`

// addRepoApp populates the app repository with a minimal app, including
// a bookkeeping directory that installs must not copy.
func (h *harness) addRepoApp(t *testing.T, id interfaces.AppID, version string) {
	t.Helper()
	dir := filepath.Join(h.cfg.AppRepoDir, id.String())
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yml"), []byte("version: "+version+"\nport: 3000\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte(repoCompose), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exports.env"), []byte("GITEA_SSH_PORT=2222\n"), 0o644))
}

func (h *harness) installed(t *testing.T) []interfaces.AppID {
	t.Helper()
	ids, err := h.ctrl.Installed()
	require.NoError(t, err)
	return ids
}

func TestInstallUninstallRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addRepoApp(t, "gitea", "1.21.0")

	require.NoError(t, h.ctrl.Install(ctx, "gitea", Options{}))

	assert.Equal(t, []interfaces.AppID{"gitea"}, h.installed(t))
	dataDir := h.cfg.AppDataDir("gitea")
	assert.FileExists(t, filepath.Join(dataDir, "app.yml"))
	assert.FileExists(t, filepath.Join(dataDir, "docker-compose.yml"))
	assert.NoDirExists(t, filepath.Join(dataDir, ".git"))

	// The default tor template was provided and rendered.
	assert.FileExists(t, h.cfg.TorrcTemplateFile("gitea"))
	assert.FileExists(t, h.cfg.TorrcFile("gitea"))
	assert.FileExists(t, h.cfg.AppEnvFile("gitea"))

	// pull, then the synchronizer's two service starts, then the full up.
	assert.Equal(t, []string{"pull", "up", "up", "up"}, h.rt.methods())

	h.rt.reset()
	require.NoError(t, h.ctrl.Uninstall(ctx, "gitea"))
	assert.Empty(t, h.installed(t))
	assert.NoDirExists(t, dataDir)
	require.Len(t, h.rt.calls, 1)
	assert.Equal(t, "down", h.rt.calls[0].method)
	assert.True(t, h.rt.calls[0].removeImages)
}

func TestInstallSkipStart(t *testing.T) {
	h := newHarness(t)
	h.addRepoApp(t, "gitea", "1.21.0")

	require.NoError(t, h.ctrl.Install(context.Background(), "gitea", Options{SkipStart: true}))

	assert.Equal(t, []string{"pull"}, h.rt.methods())
	assert.Equal(t, []interfaces.AppID{"gitea"}, h.installed(t))
}

func TestInstallNotInRepo(t *testing.T) {
	h := newHarness(t)

	err := h.ctrl.Install(context.Background(), "gitea", Options{})
	assert.ErrorIs(t, err, interfaces.ErrNotInRepo)
	assert.Empty(t, h.installed(t))
}

func TestInstallFailureDoesNotRegister(t *testing.T) {
	h := newHarness(t)
	h.addRepoApp(t, "gitea", "1.21.0")
	h.rt.pullErr = assert.AnError

	err := h.ctrl.Install(context.Background(), "gitea", Options{})
	require.Error(t, err)
	assert.Empty(t, h.installed(t))
}

func TestStartRequiresInstalled(t *testing.T) {
	h := newHarness(t)

	err := h.ctrl.Start(context.Background(), "gitea")
	assert.ErrorIs(t, err, interfaces.ErrNotInstalled)
}

func TestStopNeedsNoRegistration(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.Stop(context.Background(), "gitea"))
	require.Len(t, h.rt.calls, 1)
	assert.Equal(t, "down", h.rt.calls[0].method)
	assert.False(t, h.rt.calls[0].removeImages)
	assert.Empty(t, h.rt.calls[0].files)
}

func TestUpdateRefreshesWhitelistAndManifest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addRepoApp(t, "gitea", "1.21.0")
	require.NoError(t, h.ctrl.Install(ctx, "gitea", Options{SkipStart: true}))

	// New repo content: updated manifest, compose file, and a stray file
	// outside the whitelist.
	repoDir := h.cfg.RepoAppDir("gitea")
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "app.yml"), []byte("version: 1.22.0\nport: 3000\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "docker-compose.yml"), []byte(repoCompose+"    restart: always\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "notes.txt"), []byte("unrelated\n"), 0o644))

	require.NoError(t, h.ctrl.Update(ctx, "gitea", Options{SkipStart: true, SkipStop: true}))

	dataDir := h.cfg.AppDataDir("gitea")
	manifest, err := os.ReadFile(filepath.Join(dataDir, "app.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "1.22.0")

	composeFile, err := os.ReadFile(filepath.Join(dataDir, "docker-compose.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(composeFile), "restart: always")

	assert.NoFileExists(t, filepath.Join(dataDir, "notes.txt"))
}

// The manifest copy is deferred, so it must land even when the update
// fails partway through.
func TestUpdateManifestCopiedOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addRepoApp(t, "gitea", "1.21.0")
	require.NoError(t, h.ctrl.Install(ctx, "gitea", Options{SkipStart: true}))

	repoDir := h.cfg.RepoAppDir("gitea")
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "app.yml"), []byte("version: 1.22.0\nport: 3000\n"), 0o644))
	h.rt.pullErr = assert.AnError

	err := h.ctrl.Update(ctx, "gitea", Options{SkipStart: true, SkipStop: true})
	require.Error(t, err)

	manifest, err := os.ReadFile(filepath.Join(h.cfg.AppDataDir("gitea"), "app.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "1.22.0")
}

func TestUpdateRequiresInstalled(t *testing.T) {
	h := newHarness(t)
	h.addRepoApp(t, "gitea", "1.21.0")

	err := h.ctrl.Update(context.Background(), "gitea", Options{})
	assert.ErrorIs(t, err, interfaces.ErrNotInstalled)
}

func TestRestartStopsThenStarts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addRepoApp(t, "gitea", "1.21.0")
	require.NoError(t, h.ctrl.Install(ctx, "gitea", Options{SkipStart: true}))
	h.rt.reset()

	require.NoError(t, h.ctrl.Restart(ctx, "gitea"))

	methods := h.rt.methods()
	require.NotEmpty(t, methods)
	assert.Equal(t, "down", methods[0])
	assert.Equal(t, "up", methods[len(methods)-1])
}
