package lifecycle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/selfhostd/appctl/interfaces"
	"github.com/selfhostd/appctl/templates"
)

// updateWhitelist names the repository files refreshed by the first
// pass of update. The manifest is deliberately absent; it is copied in
// the guaranteed final pass.
var updateWhitelist = []string{"docker-compose.yml", "exports.env"}

// manifestName is the app manifest file inside an app directory.
const manifestName = "app.yml"

// defaultTorrcTemplate is written when an app ships neither a torrc nor
// a torrc template. The renderer resolves the placeholders.
const defaultTorrcTemplate = `HiddenServiceDir /var/lib/tor/app-${APP_ID}
HiddenServicePort 80 ${APP_PROXY_HOSTNAME}:${APP_PORT}
`

// ensureTorTemplate writes the default privacy-routing template unless
// the app supplies its own template or an already-resolved config.
func (c *Controller) ensureTorTemplate(id interfaces.AppID) error {
	if fileExists(c.cfg.TorrcFile(id)) || fileExists(c.cfg.TorrcTemplateFile(id)) {
		return nil
	}
	c.log.Debug("writing default tor template", "app", id)
	if err := os.WriteFile(c.cfg.TorrcTemplateFile(id), []byte(defaultTorrcTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write default tor template: %w", err)
	}
	return nil
}

// copyManifest copies the repository's current manifest into the app's
// data directory.
func (c *Controller) copyManifest(id interfaces.AppID) error {
	src := filepath.Join(c.cfg.RepoAppDir(id), manifestName)
	dst := filepath.Join(c.cfg.AppDataDir(id), manifestName)
	return copyFile(src, dst)
}

// copyTree copies the app's repository directory into dst, skipping
// repository bookkeeping artifacts (dot-prefixed entries).
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			info, err := entry.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dstPath, info.Mode().Perm()); err != nil {
				return err
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

// copyWhitelist refreshes the whitelisted files plus any template files
// from the repository root into dst. Missing whitelist entries are
// skipped: not every app ships every file.
func copyWhitelist(src, dst string) error {
	names := append([]string{}, updateWhitelist...)

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), templates.Suffix) {
			names = append(names, entry.Name())
		}
	}

	for _, name := range names {
		srcPath := filepath.Join(src, name)
		if !fileExists(srcPath) {
			continue
		}
		if err := copyFile(srcPath, filepath.Join(dst, name)); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies src to dst preserving the source's permission bits.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}
