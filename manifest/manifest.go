// Package manifest parses app manifests (app.yml) and inspects app
// compose files for declared capabilities.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/selfhostd/appctl/interfaces"
)

// ProxyService is the reserved compose service name that marks an app
// as defining a proxy-facing service.
const ProxyService = "app_proxy"

// Manifest is the declarative description of an app. Version and Port
// are required; the rest is display metadata.
type Manifest struct {
	Name      string `yaml:"name,omitempty"`
	Version   string `yaml:"version"`
	Port      int    `yaml:"port"`
	Tagline   string `yaml:"tagline,omitempty"`
	Developer string `yaml:"developer,omitempty"`
	Website   string `yaml:"website,omitempty"`
	Repo      string `yaml:"repo,omitempty"`
	Support   string `yaml:"support,omitempty"`
}

// Load reads and validates the manifest at path. A missing or
// unparsable manifest is a ConfigError: the app cannot be composed
// without its declared version and port.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, interfaces.NewConfigError("load app manifest", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, interfaces.NewConfigError("parse app manifest", err)
	}
	if err := m.Validate(); err != nil {
		return nil, interfaces.NewConfigError("validate app manifest", err)
	}
	return &m, nil
}

// Validate checks the required fields.
func (m *Manifest) Validate() error {
	if m.Version == "" {
		return fmt.Errorf("manifest is missing required field: version")
	}
	if m.Port <= 0 || m.Port > 65535 {
		return fmt.Errorf("manifest has invalid port: %d", m.Port)
	}
	return nil
}

type composeDocument struct {
	Services map[string]yaml.Node `yaml:"services"`
}

// DeclaresService reports whether the compose file at path declares a
// service with the given name.
func DeclaresService(path, service string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, interfaces.NewConfigError("load compose file", err)
	}

	var doc composeDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false, interfaces.NewConfigError("parse compose file", err)
	}
	_, ok := doc.Services[service]
	return ok, nil
}
