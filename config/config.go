// Package config loads the host-level appctl configuration: filesystem
// layout, seed file locations, and poll intervals. Configuration comes
// from an optional TOML file layered over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/selfhostd/appctl/interfaces"
)

// DefaultPath is consulted when no --config flag and no APPCTL_CONFIG
// environment variable is set.
const DefaultPath = "/etc/appctl/appctl.toml"

// EnvConfigPath overrides the config file location when set.
const EnvConfigPath = "APPCTL_CONFIG"

// Config is the host-level orchestrator configuration. Interval fields
// are in milliseconds so the file stays plain TOML integers.
type Config struct {
	// DataRoot holds one directory per installed app plus the registry
	// document and host defaults file.
	DataRoot string `toml:"data_root"`

	// AppRepoDir is the read-only app repository maintained externally.
	AppRepoDir string `toml:"app_repo_dir"`

	// FragmentDir holds the shared compose fragments (common, proxy, tor).
	FragmentDir string `toml:"fragment_dir"`

	// SeedFile is the canonical root seed location. SeedFallbackFile is
	// consulted when SeedFile is absent, which happens while the host
	// runs from the OTA overlay layout.
	SeedFile         string `toml:"seed_file"`
	SeedFallbackFile string `toml:"seed_fallback_file"`

	// TorDataDir is where the tor server materializes per-app hidden
	// service directories, including the resolved hostname file.
	TorDataDir string `toml:"tor_data_dir"`

	// Domain is the device domain advertised to apps. Defaults to
	// "<hostname>.local" when empty.
	Domain string `toml:"domain"`

	LockPollMS     int `toml:"lock_poll_ms"`
	HiddenPollMS   int `toml:"hidden_service_poll_ms"`
	HiddenAttempts int `toml:"hidden_service_attempts"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataRoot:         "/var/lib/appctl",
		AppRepoDir:       "/var/lib/appctl/repo",
		FragmentDir:      "/var/lib/appctl/fragments",
		SeedFile:         "/var/lib/appctl/db/seed/seed",
		SeedFallbackFile: "/var/lib/appctl-ota/db/seed/seed",
		TorDataDir:       "/var/lib/appctl/tor/data",
		LockPollMS:       100,
		HiddenPollMS:     1000,
		HiddenAttempts:   10,
	}
}

// Load reads the TOML file at path over the defaults. An empty path
// falls back to APPCTL_CONFIG, then DefaultPath. A missing file is not
// an error; a file that exists but does not parse is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

// LockPollInterval is the registry lock retry interval.
func (c *Config) LockPollInterval() time.Duration {
	return time.Duration(c.LockPollMS) * time.Millisecond
}

// HiddenPollInterval is the hidden-service address poll interval.
func (c *Config) HiddenPollInterval() time.Duration {
	return time.Duration(c.HiddenPollMS) * time.Millisecond
}

// RegistryFile is the installed-apps document.
func (c *Config) RegistryFile() string {
	return filepath.Join(c.DataRoot, "registry.json")
}

// HostEnvFile is the optional host defaults file (NETWORK_IP and
// friends) sourced into every environment context.
func (c *Config) HostEnvFile() string {
	return filepath.Join(c.DataRoot, "host.env")
}

// RepoAppDir is the app's source directory in the repository.
func (c *Config) RepoAppDir(id interfaces.AppID) string {
	return filepath.Join(c.AppRepoDir, id.String())
}

// AppDataDir is the app's installed data directory.
func (c *Config) AppDataDir(id interfaces.AppID) string {
	return filepath.Join(c.DataRoot, id.String())
}

// AppManifestFile is the app.yml manifest inside the data directory.
func (c *Config) AppManifestFile(id interfaces.AppID) string {
	return filepath.Join(c.AppDataDir(id), "app.yml")
}

// AppComposeFile is the app's own compose file.
func (c *Config) AppComposeFile(id interfaces.AppID) string {
	return filepath.Join(c.AppDataDir(id), "docker-compose.yml")
}

// AppExportsFile is the app's declared-variables file, sourced into
// every app's environment context when present.
func (c *Config) AppExportsFile(id interfaces.AppID) string {
	return filepath.Join(c.AppDataDir(id), "exports.env")
}

// AppEnvFile is where the composed context is written for the runtime.
func (c *Config) AppEnvFile(id interfaces.AppID) string {
	return filepath.Join(c.AppDataDir(id), ".env")
}

// TorrcFile is the app's resolved privacy-routing configuration.
func (c *Config) TorrcFile(id interfaces.AppID) string {
	return filepath.Join(c.AppDataDir(id), "torrc")
}

// TorrcTemplateFile is the template the renderer resolves into TorrcFile.
func (c *Config) TorrcTemplateFile(id interfaces.AppID) string {
	return c.TorrcFile(id) + ".template"
}

// HiddenServiceHostnameFile is the address file the tor server writes
// once the app's hidden service is published.
func (c *Config) HiddenServiceHostnameFile(id interfaces.AppID) string {
	return filepath.Join(c.TorDataDir, "app-"+id.String(), "hostname")
}

// FragmentPath resolves a shared compose fragment by file name.
func (c *Config) FragmentPath(name string) string {
	return filepath.Join(c.FragmentDir, name)
}
