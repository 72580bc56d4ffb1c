// Package secrets derives per-app credentials from the host root seed.
//
// Derivation is deterministic: the same root seed and identifier always
// produce the same secret, so credentials survive reinstalls and OTA
// upgrades without being stored anywhere. A missing seed is fatal; the
// system must never proceed with a weak or absent secret.
package secrets

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/selfhostd/appctl/config"
	"github.com/selfhostd/appctl/interfaces"
)

// Deriver derives 32-byte hex secrets via HMAC-SHA256 keyed with the
// host root seed.
type Deriver struct {
	seedFiles []string
}

// NewDeriver creates a Deriver reading the seed from the canonical
// location, falling back to the OTA overlay location.
func NewDeriver(cfg *config.Config) *Deriver {
	return &Deriver{seedFiles: []string{cfg.SeedFile, cfg.SeedFallbackFile}}
}

// Derive returns hex(HMAC-SHA256(root_seed, identifier)). An empty
// identifier or an unreadable seed is a ConfigError.
func (d *Deriver) Derive(identifier string) (string, error) {
	if identifier == "" {
		return "", interfaces.NewConfigError("derive secret", errors.New("empty identifier"))
	}

	seed, err := d.readSeed()
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, seed)
	mac.Write([]byte(identifier))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (d *Deriver) readSeed() ([]byte, error) {
	var lastErr error
	for _, path := range d.seedFiles {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			lastErr = err
			continue
		}
		seed := bytes.TrimSpace(data)
		if len(seed) == 0 {
			lastErr = fmt.Errorf("seed file %s is empty", path)
			continue
		}
		return seed, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no seed file configured")
	}
	return nil, interfaces.NewConfigError("read root seed", lastErr)
}

// AppSeedID is the derivation identifier for an app's general seed.
func AppSeedID(id interfaces.AppID) string {
	return fmt.Sprintf("app-%s-seed", id)
}

// AppPasswordID is the derivation identifier for an app's password.
func AppPasswordID(id interfaces.AppID) string {
	return AppSeedID(id) + "-APP_PASSWORD"
}
