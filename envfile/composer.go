package envfile

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/selfhostd/appctl/config"
	"github.com/selfhostd/appctl/interfaces"
	"github.com/selfhostd/appctl/manifest"
	"github.com/selfhostd/appctl/secrets"
)

// HiddenServiceSentinel is published as APP_HIDDEN_SERVICE until the
// tor server resolves the app's real address.
const HiddenServiceSentinel = "not-yet-set.onion"

// reservedKeys are identity fields no sourced exports file may set.
var reservedKeys = map[string]struct{}{
	"APP_ID":             {},
	"APP_MANIFEST_FILE":  {},
	"APP_VERSION":        {},
	"APP_PROXY_HOSTNAME": {},
	"APP_PORT":           {},
	"APP_DATA_DIR":       {},
	"APP_DOMAIN":         {},
	"APP_HIDDEN_SERVICE": {},
	"APP_SEED":           {},
	"APP_PASSWORD":       {},
	"NETWORK_IP":         {},
	"DEVICE_HOSTNAME":    {},
	"DEVICE_DOMAIN":      {},
}

// Composer builds environment contexts for apps.
type Composer struct {
	cfg     *config.Config
	reg     interfaces.Registry
	deriver interfaces.SecretDeriver
	log     *slog.Logger
}

// NewComposer creates a Composer over the given registry and deriver.
func NewComposer(cfg *config.Config, reg interfaces.Registry, deriver interfaces.SecretDeriver, log *slog.Logger) *Composer {
	return &Composer{cfg: cfg, reg: reg, deriver: deriver, log: log}
}

// Compose builds the full environment context for id. The target app is
// sourced even when not yet registered so an in-progress install can
// use its own exports. Fails with a ConfigError when the app manifest
// is missing or invalid, or when the root seed is unreadable.
func (c *Composer) Compose(id interfaces.AppID) (map[string]string, error) {
	env := make(map[string]string)

	// Host defaults, then host identity.
	if vars, err := godotenv.Read(c.cfg.HostEnvFile()); err == nil {
		for k, v := range vars {
			env[k] = v
		}
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	env["DEVICE_HOSTNAME"] = hostname
	domain := c.cfg.Domain
	if domain == "" {
		domain = hostname + ".local"
	}
	env["DEVICE_DOMAIN"] = domain
	if _, ok := env["NETWORK_IP"]; !ok {
		env["NETWORK_IP"] = os.Getenv("NETWORK_IP")
	}

	m, err := manifest.Load(c.cfg.AppManifestFile(id))
	if err != nil {
		return nil, err
	}

	// Exports of every installed app plus the target, target last.
	for _, sourced := range c.appsToSource(id) {
		c.mergeExports(env, sourced)
	}

	// Identity fields take final precedence.
	env["APP_ID"] = id.String()
	env["APP_MANIFEST_FILE"] = c.cfg.AppManifestFile(id)
	env["APP_VERSION"] = m.Version
	env["APP_PROXY_HOSTNAME"] = fmt.Sprintf("%s-app-proxy", id)
	env["APP_PORT"] = strconv.Itoa(m.Port)
	env["APP_DATA_DIR"] = c.cfg.AppDataDir(id)
	env["APP_DOMAIN"] = domain

	env["APP_HIDDEN_SERVICE"] = HiddenServiceSentinel
	if addr, err := os.ReadFile(c.cfg.HiddenServiceHostnameFile(id)); err == nil {
		if trimmed := strings.TrimSpace(string(addr)); trimmed != "" {
			env["APP_HIDDEN_SERVICE"] = trimmed
		}
	}

	seed, err := c.deriver.Derive(secrets.AppSeedID(id))
	if err != nil {
		return nil, err
	}
	password, err := c.deriver.Derive(secrets.AppPasswordID(id))
	if err != nil {
		return nil, err
	}
	env["APP_SEED"] = seed
	env["APP_PASSWORD"] = password

	return env, nil
}

// WriteEnvFile persists env to the app's .env file for the container
// runtime and returns its path.
func (c *Composer) WriteEnvFile(id interfaces.AppID, env map[string]string) (string, error) {
	path := c.cfg.AppEnvFile(id)
	if err := godotenv.Write(env, path); err != nil {
		return "", fmt.Errorf("failed to write env file: %w", err)
	}
	return path, nil
}

// appsToSource is the registry list with the target forced in, target
// ordered last.
func (c *Composer) appsToSource(target interfaces.AppID) []interfaces.AppID {
	installed, err := c.reg.List()
	if err != nil {
		installed = nil
	}
	apps := make([]interfaces.AppID, 0, len(installed)+1)
	for _, id := range installed {
		if id != target {
			apps = append(apps, id)
		}
	}
	return append(apps, target)
}

func (c *Composer) mergeExports(env map[string]string, id interfaces.AppID) {
	vars, err := godotenv.Read(c.cfg.AppExportsFile(id))
	if err != nil {
		return
	}
	for k, v := range vars {
		if _, reserved := reservedKeys[k]; reserved {
			c.log.Warn("ignoring reserved key in app exports", "app", id, "key", k)
			continue
		}
		env[k] = v
	}
}
